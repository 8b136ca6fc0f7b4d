package actionlog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/instance-action-log/instance-action-log/internal/db/models"
	"github.com/instance-action-log/instance-action-log/internal/telemetry"
)

// Request is the read-only view of an inbound call that an interception needs.
// Every field is optional except Body for actions whose detail depends on it.
type Request struct {
	UserHeader   string
	AuthToken    string
	TenantHeader string
	Origin       string
	// TargetID is the instance id taken from the request path. Empty for create.
	TargetID string
	// Body is the decoded request body, still inside its transport wrapper.
	Body map[string]any

	intercepted atomic.Bool
}

// Response is the read-only view of the finalized result of the operation.
type Response struct {
	StatusCode int
	Body       map[string]any
}

// Point is the interception registration for one action.
type Point struct {
	Action Action
	// TargetFromResponse reads the instance id from the response body
	// (server.id) because it is assigned by the operation itself.
	TargetFromResponse bool
	Extract            Extractor
}

// ExtractionPolicy decides what happens when a detail rule fails.
type ExtractionPolicy string

const (
	// ExtractionRecordEmpty writes the record with an empty detail and reports
	// the extraction error as a warning.
	ExtractionRecordEmpty ExtractionPolicy = "record"
	// ExtractionSkip writes no record and returns the extraction error.
	ExtractionSkip ExtractionPolicy = "skip"
)

// ParseExtractionPolicy validates a configured policy name.
func ParseExtractionPolicy(s string) (ExtractionPolicy, error) {
	switch ExtractionPolicy(s) {
	case ExtractionRecordEmpty, ExtractionSkip:
		return ExtractionPolicy(s), nil
	case "":
		return ExtractionRecordEmpty, nil
	default:
		return "", fmt.Errorf("invalid extraction policy %q (must be record or skip)", s)
	}
}

// DefaultPoints returns one registration per action in the vocabulary.
func DefaultPoints() []Point {
	points := make([]Point, 0, len(vocabulary))
	for _, a := range vocabulary {
		points = append(points, Point{
			Action:             a,
			TargetFromResponse: a == ActionCreate,
			Extract:            extractors[a],
		})
	}
	return points
}

// Interceptor holds the registered points and is invoked by the dispatcher
// after each mutating operation has produced its response.
type Interceptor struct {
	recorder *Recorder
	policy   ExtractionPolicy

	mu     sync.RWMutex
	points map[Action]Point
}

// InterceptorOption customises an Interceptor.
type InterceptorOption func(*Interceptor)

// WithExtractionPolicy sets the extraction failure policy.
func WithExtractionPolicy(p ExtractionPolicy) InterceptorOption {
	return func(i *Interceptor) { i.policy = p }
}

// NewInterceptor registers DefaultPoints on top of recorder.
func NewInterceptor(recorder *Recorder, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		recorder: recorder,
		policy:   ExtractionRecordEmpty,
		points:   make(map[Action]Point),
	}
	for _, opt := range opts {
		opt(i)
	}
	for _, p := range DefaultPoints() {
		i.Register(p)
	}
	return i
}

// Register adds or replaces the point for p.Action. A nil Extract means the
// action carries no detail.
func (i *Interceptor) Register(p Point) {
	if p.Extract == nil {
		p.Extract = noDetail
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.points[p.Action] = p
}

// Intercept records the completed operation described by req and resp.
//
// It returns the stored record and, possibly alongside it, a warning error:
// an *ExtractionError under ExtractionRecordEmpty. On store failure it returns
// an *AppendError and no record. Callers log errors and continue; nothing here
// may change the response sent to the original caller. A nil req or resp
// returns ErrNilExchange.
func (i *Interceptor) Intercept(ctx context.Context, action Action, req *Request, resp *Response) (*models.InstanceActionLog, error) {
	i.mu.RLock()
	point, ok := i.points[action]
	i.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if req == nil || resp == nil {
		return nil, ErrNilExchange
	}
	if !req.intercepted.CompareAndSwap(false, true) {
		return nil, ErrAlreadyIntercepted
	}

	detail, extractErr := point.Extract(action, req.Body, resp.Body)
	if extractErr != nil {
		if i.policy == ExtractionSkip {
			telemetry.ActionRecordsTotal.WithLabelValues(string(action), telemetry.OutcomeSkipped).Inc()
			return nil, extractErr
		}
		detail = ""
	}

	entry := Entry{
		TargetID:         req.TargetID,
		Action:           action,
		RequestingOrigin: req.Origin,
		ResultStatus:     resp.StatusCode,
		TenantID:         req.TenantHeader,
		ActorID:          ResolveActor(Signals{User: req.UserHeader, Token: req.AuthToken}),
		Detail:           detail,
	}
	if point.TargetFromResponse {
		entry.TargetID = createdServerID(resp.Body)
	}

	rec, err := i.recorder.Record(ctx, entry)
	switch {
	case err != nil:
		telemetry.ActionRecordsTotal.WithLabelValues(string(action), telemetry.OutcomeAppendFailed).Inc()
		if extractErr != nil {
			return nil, errors.Join(err, extractErr)
		}
		return nil, err
	case extractErr != nil:
		telemetry.ActionRecordsTotal.WithLabelValues(string(action), telemetry.OutcomeExtractionFailed).Inc()
		return rec, extractErr
	default:
		telemetry.ActionRecordsTotal.WithLabelValues(string(action), telemetry.OutcomeRecorded).Inc()
		return rec, nil
	}
}

// createdServerID returns server.id from a create response, or "" when the
// operation failed before an id was assigned.
func createdServerID(body map[string]any) string {
	server, ok := body["server"].(map[string]any)
	if !ok {
		return ""
	}
	if id, ok := server["id"]; ok && id != nil {
		return scalar(id)
	}
	return ""
}
