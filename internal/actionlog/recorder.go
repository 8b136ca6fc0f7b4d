package actionlog

import (
	"context"
	"log/slog"

	"github.com/instance-action-log/instance-action-log/internal/audit"
	"github.com/instance-action-log/instance-action-log/internal/db/models"
	"github.com/instance-action-log/instance-action-log/internal/telemetry"
)

// Entry holds the already-derived values of one interception.
type Entry struct {
	TargetID         string
	Action           Action
	RequestingOrigin string
	ResultStatus     int
	TenantID         string
	ActorID          string
	Detail           string
}

// Recorder assembles records and appends them to a Store. It is safe for
// concurrent use as long as the Store and Shipper are.
type Recorder struct {
	store   Store
	shipper audit.Shipper
	logger  *slog.Logger
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithShipper forwards every stored record to s.
func WithShipper(s audit.Shipper) RecorderOption {
	return func(r *Recorder) { r.shipper = s }
}

// WithLogger replaces slog.Default().
func WithLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecorder creates a Recorder writing to store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Synthesize builds the record for e, substituting NotFound for every empty
// optional field. It performs no other validation.
func Synthesize(e Entry) *models.InstanceActionLog {
	return &models.InstanceActionLog{
		TargetID:         orNotFound(e.TargetID),
		ActionKind:       string(e.Action),
		RequestingOrigin: orNotFound(e.RequestingOrigin),
		ResultStatus:     e.ResultStatus,
		TenantID:         orNotFound(e.TenantID),
		ActorID:          orNotFound(e.ActorID),
		Detail:           e.Detail,
	}
}

// Record synthesizes and appends one record. A store failure is returned as an
// *AppendError, which callers treat as a warning: the operation being audited
// has already completed and its response must go out unchanged.
func (r *Recorder) Record(ctx context.Context, e Entry) (*models.InstanceActionLog, error) {
	rec := Synthesize(e)

	if _, err := r.store.Append(ctx, rec); err != nil {
		return nil, &AppendError{Action: e.Action, TargetID: rec.TargetID, Err: err}
	}

	if r.shipper != nil {
		r.ship(ctx, rec)
	}
	return rec, nil
}

// ListByTarget returns the stored records for targetID in insertion order.
func (r *Recorder) ListByTarget(ctx context.Context, targetID string) ([]*models.InstanceActionLog, error) {
	return r.store.ListByTarget(ctx, targetID)
}

func (r *Recorder) ship(ctx context.Context, rec *models.InstanceActionLog) {
	err := r.shipper.Ship(ctx, audit.EntryFromRecord(rec))
	if err == nil {
		return
	}
	r.logger.Warn("failed to ship instance action log",
		"action", rec.ActionKind, "target_id", rec.TargetID, "error", err)

	// MultiShipper counts its own per-destination failures.
	if _, multi := r.shipper.(*audit.MultiShipper); !multi {
		telemetry.ShipperErrorsTotal.WithLabelValues(r.shipper.Name()).Inc()
	}
}

func orNotFound(s string) string {
	if s == "" {
		return NotFound
	}
	return s
}
