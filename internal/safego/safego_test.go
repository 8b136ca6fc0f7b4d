package safego

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer is a bytes.Buffer safe for one writer goroutine and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("goroutine did not complete within timeout")
	}
}

func TestGo_RunsFunction(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	ran := false

	Go("runner", func() {
		defer wg.Done()
		ran = true
	})

	waitOrFail(t, &wg)
	if !ran {
		t.Error("function did not run")
	}
}

func TestGo_RecoversPanicAndLogsName(t *testing.T) {
	var buf syncBuffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	var wg sync.WaitGroup
	wg.Add(1)
	Go("db-stats", func() {
		defer wg.Done()
		panic("intentional panic in test")
	})
	waitOrFail(t, &wg)

	// The recover runs after the deferred Done; give it a moment to log.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !strings.Contains(buf.String(), "db-stats") {
		time.Sleep(10 * time.Millisecond)
	}
	if !strings.Contains(buf.String(), "goroutine=db-stats") {
		t.Errorf("log output %q does not name the goroutine", buf.String())
	}
}
