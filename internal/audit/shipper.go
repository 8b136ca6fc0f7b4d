// Package audit forwards instance action records to destinations outside the
// primary store: an HTTP webhook, a local JSON-lines file, a Redis stream, or
// an S3 bucket. The database remains the system of record; shippers are
// secondary copies for SIEM pipelines and long-term archives, so a failing
// shipper never fails the record itself.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/instance-action-log/instance-action-log/internal/db/models"
	"github.com/instance-action-log/instance-action-log/internal/telemetry"
)

// LogEntry is the wire form of an instance action record.
type LogEntry struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	TargetID         string    `json:"target_id"`
	Action           string    `json:"action"`
	RequestingOrigin string    `json:"requesting_origin"`
	ResultStatus     int       `json:"result_status"`
	TenantID         string    `json:"tenant_id"`
	ActorID          string    `json:"actor_id"`
	Detail           string    `json:"detail,omitempty"`
}

// EntryFromRecord converts a stored record into a LogEntry.
func EntryFromRecord(rec *models.InstanceActionLog) *LogEntry {
	return &LogEntry{
		ID:               rec.ID,
		Timestamp:        rec.CreatedAt,
		TargetID:         rec.TargetID,
		Action:           rec.ActionKind,
		RequestingOrigin: rec.RequestingOrigin,
		ResultStatus:     rec.ResultStatus,
		TenantID:         rec.TenantID,
		ActorID:          rec.ActorID,
		Detail:           rec.Detail,
	}
}

// Shipper delivers log entries to one destination.
type Shipper interface {
	// Name identifies the destination in logs and metrics.
	Name() string
	Ship(ctx context.Context, entry *LogEntry) error
	Close() error
}

// ShipperConfig selects and configures one shipper.
type ShipperConfig struct {
	Enabled bool
	// Type is one of webhook, file, redis, s3.
	Type    string
	Webhook *WebhookConfig
	File    *FileConfig
	Redis   *RedisConfig
	S3      *S3Config
}

// WebhookConfig configures a WebhookShipper.
type WebhookConfig struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

// FileConfig configures a FileShipper.
type FileConfig struct {
	Path string
	// MaxSizeMB triggers rotation once the file grows past it (0 disables).
	MaxSizeMB  int
	MaxBackups int
}

// MultiShipper fans an entry out to every configured shipper.
type MultiShipper struct {
	shippers []Shipper
	mu       sync.RWMutex
}

// NewMultiShipper builds the enabled shippers described by configs.
func NewMultiShipper(configs []ShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var (
			shipper Shipper
			err     error
		)
		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shipper, err = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		case "redis":
			if cfg.Redis == nil {
				return nil, fmt.Errorf("redis config is required for redis shipper")
			}
			shipper, err = NewRedisShipper(cfg.Redis)
		case "s3":
			if cfg.S3 == nil {
				return nil, fmt.Errorf("s3 config is required for s3 shipper")
			}
			shipper, err = NewS3Shipper(context.Background(), cfg.S3)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}
		if err != nil {
			_ = ms.Close()
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}

		ms.shippers = append(ms.shippers, shipper)
	}

	return ms, nil
}

// Add appends an already constructed shipper.
func (ms *MultiShipper) Add(s Shipper) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.shippers = append(ms.shippers, s)
}

// Len reports how many shippers are active.
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

func (ms *MultiShipper) Name() string { return "multi" }

// Ship delivers to every shipper, continuing past failures. The returned error
// joins every individual failure.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var errs []error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, entry); err != nil {
			slog.Warn("audit shipper failed", "shipper", s.Name(), "target_id", entry.TargetID, "error", err)
			telemetry.ShipperErrorsTotal.WithLabelValues(s.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every shipper.
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var errs []error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WebhookShipper POSTs each entry as JSON.
type WebhookShipper struct {
	cfg    *WebhookConfig
	client *http.Client
}

// NewWebhookShipper creates a webhook shipper; the timeout defaults to 10s.
func NewWebhookShipper(cfg *WebhookConfig) (*WebhookShipper, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &WebhookShipper{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (ws *WebhookShipper) Name() string { return "webhook" }

// Ship sends entry to the webhook URL.
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.cfg.URL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (ws *WebhookShipper) Close() error { return nil }

// FileShipper appends entries to a JSON-lines file with size based rotation.
type FileShipper struct {
	cfg  *FileConfig
	file *os.File
	mu   sync.Mutex
}

// NewFileShipper opens (or creates) the target file for appending.
func NewFileShipper(cfg *FileConfig) (*FileShipper, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	file, err := openAppend(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	return &FileShipper{cfg: cfg, file: file}, nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

func (fs *FileShipper) Name() string { return "file" }

// Ship writes entry as one JSON line.
func (fs *FileShipper) Ship(_ context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if fs.cfg.MaxSizeMB > 0 {
		info, err := fs.file.Stat()
		if err == nil && info.Size() > int64(fs.cfg.MaxSizeMB)*1024*1024 {
			if err := fs.rotate(); err != nil {
				return fmt.Errorf("failed to rotate audit log: %w", err)
			}
		}
	}

	if _, err := fs.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// rotate shifts path.N to path.N+1, moves the live file to path.1 and reopens.
func (fs *FileShipper) rotate() error {
	if err := fs.file.Close(); err != nil {
		return err
	}

	if fs.cfg.MaxBackups > 0 {
		_ = os.Remove(fmt.Sprintf("%s.%d", fs.cfg.Path, fs.cfg.MaxBackups))
		for i := fs.cfg.MaxBackups - 1; i >= 1; i-- {
			_ = os.Rename(fmt.Sprintf("%s.%d", fs.cfg.Path, i), fmt.Sprintf("%s.%d", fs.cfg.Path, i+1))
		}
		_ = os.Rename(fs.cfg.Path, fs.cfg.Path+".1")
	} else {
		_ = os.Remove(fs.cfg.Path)
	}

	file, err := openAppend(fs.cfg.Path)
	if err != nil {
		return err
	}
	fs.file = file
	return nil
}

// Close closes the underlying file.
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.file.Close()
}
