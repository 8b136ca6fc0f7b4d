package actionlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/instance-action-log/instance-action-log/internal/db/models"
)

func TestMemoryStore_AppendAssignsIdentity(t *testing.T) {
	s := NewMemoryStore()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	rec := &models.InstanceActionLog{TargetID: "vm-1", ActionKind: "reboot"}
	id, err := s.Append(context.Background(), rec)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if id == "" || rec.ID != id {
		t.Errorf("id = %q, rec.ID = %q", id, rec.ID)
	}
	if rec.Sequence != 1 {
		t.Errorf("Sequence = %d, want 1", rec.Sequence)
	}
	if !rec.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, fixed)
	}
}

func TestMemoryStore_ListByTargetOrderAndIsolation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, a := range []string{"create", "reboot", "resize"} {
		if _, err := s.Append(ctx, &models.InstanceActionLog{TargetID: "vm-1", ActionKind: a}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if _, err := s.Append(ctx, &models.InstanceActionLog{TargetID: "vm-2", ActionKind: "delete"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.ListByTarget(ctx, "vm-1")
	if err != nil {
		t.Fatalf("ListByTarget: %v", err)
	}
	want := []string{"create", "reboot", "resize"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, rec := range got {
		if rec.ActionKind != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, rec.ActionKind, want[i])
		}
	}

	// Returned records are copies.
	got[0].Detail = "tampered"
	again, _ := s.ListByTarget(ctx, "vm-1")
	if again[0].Detail != "" {
		t.Errorf("stored record mutated through returned copy: %q", again[0].Detail)
	}

	none, err := s.ListByTarget(ctx, "vm-unknown")
	if err != nil || len(none) != 0 {
		t.Errorf("ListByTarget(unknown) = %v, %v; want empty", none, err)
	}
}

func TestMemoryStore_SkipsSoftDeleted(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_, _ = s.Append(ctx, &models.InstanceActionLog{TargetID: "vm-1", ActionKind: "create", SoftDeleted: true})
	_, _ = s.Append(ctx, &models.InstanceActionLog{TargetID: "vm-1", ActionKind: "reboot"})

	got, _ := s.ListByTarget(ctx, "vm-1")
	if len(got) != 1 || got[0].ActionKind != "reboot" {
		t.Errorf("ListByTarget = %+v, want only the reboot record", got)
	}
	if s.Len() != 2 {
		t.Errorf("Len = %d, want 2", s.Len())
	}
}

func TestMemoryStore_ConcurrentAppend(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Append(ctx, &models.InstanceActionLog{TargetID: "vm-1", ActionKind: "reboot"})
		}()
	}
	wg.Wait()

	got, _ := s.ListByTarget(ctx, "vm-1")
	if len(got) != n {
		t.Fatalf("len = %d, want %d", len(got), n)
	}
	seen := make(map[string]bool, n)
	for i, rec := range got {
		if rec.Sequence != int64(i+1) {
			t.Errorf("got[%d].Sequence = %d, want %d", i, rec.Sequence, i+1)
		}
		if seen[rec.ID] {
			t.Errorf("duplicate id %q", rec.ID)
		}
		seen[rec.ID] = true
	}
}
