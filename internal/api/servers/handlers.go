// Package servers implements the dispatcher routes for the mutating compute
// server operations. Each handler forwards the call to the upstream compute
// API, relays the upstream response unchanged, and then explicitly invokes the
// interception point for the matching action.
package servers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/instance-action-log/instance-action-log/internal/actionlog"
	"github.com/instance-action-log/instance-action-log/internal/compute"
	"github.com/instance-action-log/instance-action-log/internal/middleware"
)

// maxBodyBytes bounds the request bodies read for forwarding.
const maxBodyBytes = 1 << 20

// actionKeys maps the single top-level key of a server action body to the
// recorded action kind. Keys not listed are proxied without a record.
var actionKeys = map[string]actionlog.Action{
	"changePassword": actionlog.ActionRootPassword,
	"resize":         actionlog.ActionResize,
	"rebuild":        actionlog.ActionRebuild,
	"reboot":         actionlog.ActionReboot,
	"createImage":    actionlog.ActionVolumeSnapshotCreate,
	"confirmResize":  actionlog.ActionConfirmResize,
	"revertResize":   actionlog.ActionRevertResize,
}

// Forwarder sends an inbound request to the upstream compute API.
type Forwarder interface {
	Forward(ctx context.Context, in *http.Request, body []byte) (*compute.Response, error)
}

// HeaderNames are the inbound headers identity and tenant are read from.
type HeaderNames struct {
	User   string
	Token  string
	Tenant string
}

// Handler serves the server routes.
type Handler struct {
	upstream    Forwarder
	interceptor *actionlog.Interceptor
	headers     HeaderNames
	logger      *slog.Logger
}

// NewHandler creates a Handler. A nil interceptor disables recording; calls
// are still forwarded.
func NewHandler(upstream Forwarder, interceptor *actionlog.Interceptor, headers HeaderNames) *Handler {
	return &Handler{
		upstream:    upstream,
		interceptor: interceptor,
		headers:     headers,
		logger:      slog.Default(),
	}
}

// CreateServer handles POST /{version}/:project_id/servers.
func (h *Handler) CreateServer(c *gin.Context) {
	h.dispatch(c, actionlog.ActionCreate)
}

// DeleteServer handles DELETE /{version}/:project_id/servers/:server_id.
func (h *Handler) DeleteServer(c *gin.Context) {
	h.dispatch(c, actionlog.ActionDelete)
}

// ServerAction handles POST /{version}/:project_id/servers/:server_id/action,
// choosing the action from the body's top-level key.
func (h *Handler) ServerAction(c *gin.Context) {
	h.dispatch(c, "")
}

// Proxy forwards any other call without recording it.
func (h *Handler) Proxy(c *gin.Context) {
	raw, ok := h.readBody(c)
	if !ok {
		return
	}
	resp := h.forward(c, raw)
	writeResponse(c, resp)
}

func (h *Handler) dispatch(c *gin.Context, action actionlog.Action) {
	raw, ok := h.readBody(c)
	if !ok {
		return
	}

	reqBody, decodeErr := actionlog.DecodeBody(raw)
	if action == "" {
		action = actionFromBody(reqBody)
	}

	resp := h.forward(c, raw)
	writeResponse(c, resp)

	if action == "" || h.interceptor == nil {
		return
	}
	// Deliver the response before the record is written.
	c.Writer.Flush()

	if decodeErr != nil {
		h.logger.Warn("request body is not a JSON object; recording without detail",
			"action", action, "request_id", middleware.RequestID(c), "error", decodeErr)
	}
	h.intercept(c, action, reqBody, resp)
}

// intercept runs after the response has been written; its outcome is only
// logged.
func (h *Handler) intercept(c *gin.Context, action actionlog.Action, reqBody map[string]any, resp *compute.Response) {
	respBody, _ := actionlog.DecodeBody(resp.Body)

	req := &actionlog.Request{
		UserHeader:   c.GetHeader(h.headers.User),
		AuthToken:    c.GetHeader(h.headers.Token),
		TenantHeader: c.GetHeader(h.headers.Tenant),
		Origin:       c.ClientIP(),
		TargetID:     c.Param("server_id"),
		Body:         reqBody,
	}

	// The operation has already completed, so the record is written even if
	// the caller has gone away.
	ctx := context.WithoutCancel(c.Request.Context())
	rec, err := h.interceptor.Intercept(ctx, action, req, &actionlog.Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
	})

	requestID := middleware.RequestID(c)
	if err != nil {
		h.logger.Warn("instance action log warning",
			"action", action, "target_id", req.TargetID, "request_id", requestID, "error", err)
	}
	if rec != nil {
		h.logger.Debug("instance action recorded",
			"id", rec.ID, "action", rec.ActionKind, "target_id", rec.TargetID, "request_id", requestID)
	}
}

func (h *Handler) readBody(c *gin.Context) ([]byte, bool) {
	if c.Request.Body == nil {
		return nil, true
	}
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return nil, false
		}
		h.logger.Warn("failed to read request body",
			"method", c.Request.Method, "path", c.Request.URL.Path,
			"request_id", middleware.RequestID(c), "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return nil, false
	}
	return raw, true
}

// forward calls the upstream; a transport failure becomes a 502 response that
// is still relayed and recorded.
func (h *Handler) forward(c *gin.Context, raw []byte) *compute.Response {
	resp, err := h.upstream.Forward(c.Request.Context(), c.Request, raw)
	if err == nil {
		return resp
	}
	h.logger.Error("compute upstream unavailable",
		"method", c.Request.Method, "path", c.Request.URL.Path,
		"request_id", middleware.RequestID(c), "error", err)

	return &compute.Response{
		StatusCode: http.StatusBadGateway,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       []byte(`{"badGateway": {"code": 502, "message": "compute service unavailable"}}`),
	}
}

func writeResponse(c *gin.Context, resp *compute.Response) {
	header := c.Writer.Header()
	for k, vs := range resp.Header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	c.Status(resp.StatusCode)
	if len(resp.Body) > 0 {
		_, _ = c.Writer.Write(resp.Body)
	} else {
		c.Writer.WriteHeaderNow()
	}
}

// actionFromBody returns the recorded action for a server action body, or ""
// when its key is not one that is recorded.
func actionFromBody(body map[string]any) actionlog.Action {
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if a, ok := actionKeys[k]; ok {
			return a
		}
	}
	return ""
}
