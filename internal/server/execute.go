// ABOUTME: Tool invocation endpoint: parse, execute via the registry, broadcast, acknowledge.
// ABOUTME: Tool failures are broadcast as error outcomes; the HTTP reply still reports success.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/membank/internal/auth"
	"github.com/2389/membank/internal/observe"
	"github.com/2389/membank/internal/store"
	"github.com/2389/membank/internal/tools"
)

// ExecuteRequest is the /execute request body.
type ExecuteRequest struct {
	Tool   string          `json:"tool"`
	Params tools.Params    `json:"params,omitempty"`
	ID     json.RawMessage `json:"id,omitempty"`
}

var errBodyTooLarge = errors.New("request body too large")

// wireRequest is the body as sent. params stays raw so any JSON value is accepted.
type wireRequest struct {
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params,omitempty"`
	ID     json.RawMessage `json:"id,omitempty"`
}

// decodeExecuteRequest parses body. Params that are not a JSON object are
// replaced by an empty object rather than rejected.
func decodeExecuteRequest(body []byte) (ExecuteRequest, error) {
	var wire wireRequest
	if err := json.Unmarshal(body, &wire); err != nil {
		return ExecuteRequest{}, err
	}
	req := ExecuteRequest{Tool: wire.Tool, ID: wire.ID}
	if len(wire.Params) > 0 {
		var params tools.Params
		if err := json.Unmarshal(wire.Params, &params); err == nil {
			req.Params = params
		}
	}
	if req.Params == nil {
		req.Params = tools.Params{}
	}
	return req, nil
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.logger.Warn("reading request body", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(body) > MaxRequestBodySize {
		s.writeError(w, http.StatusRequestEntityTooLarge, errBodyTooLarge.Error())
		return
	}

	req, err := decodeExecuteRequest(body)
	if err != nil {
		s.logger.Warn("decoding request body", "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.Tool == "" {
		s.writeError(w, http.StatusBadRequest, "Tool name is required")
		return
	}

	// The tool runs to completion even if the caller goes away.
	ctx := context.WithoutCancel(r.Context())

	outcome, elapsed := s.execute(ctx, &req)

	payload, err := toolResponse(req.ID, outcome)
	if err != nil {
		s.logger.Error("encoding tool response", "tool", req.Tool, "error", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	delivered := s.sessions.Broadcast(ctx, EventToolResponse, payload)
	s.record(ctx, &req, outcome, elapsed)

	s.logger.Info("tool executed",
		"tool", req.Tool,
		"id", string(req.ID),
		"ok", outcome.OK(),
		"duration", elapsed,
		"delivered", delivered,
		"subject", auth.SubjectFromContext(ctx),
	)

	s.writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) execute(ctx context.Context, req *ExecuteRequest) (tools.Outcome, time.Duration) {
	ctx, span := observe.Tracer().Start(ctx, "tool.execute",
		trace.WithAttributes(attribute.String("tool", req.Tool)),
	)
	defer span.End()

	start := time.Now()
	outcome := s.registry.Execute(ctx, req.Tool, req.Params)
	elapsed := time.Since(start)

	if !outcome.OK() {
		span.SetStatus(codes.Error, outcome.Err.Message)
	}
	s.metrics.RecordToolCall(ctx, req.Tool, outcome.OK(), elapsed)
	return outcome, elapsed
}

// toolResponse encodes the broadcast data: the echoed id plus either
// "result" or "error". An absent id is omitted.
func toolResponse(id json.RawMessage, outcome tools.Outcome) (json.RawMessage, error) {
	fields := outcome.Fields()
	if len(id) > 0 {
		fields["id"] = id
	}
	return json.Marshal(fields)
}

func (s *Server) record(ctx context.Context, req *ExecuteRequest, outcome tools.Outcome, elapsed time.Duration) {
	if s.recorder == nil {
		return
	}
	inv := &store.Invocation{
		Tool:          req.Tool,
		CorrelationID: correlationString(req.ID),
		OK:            outcome.OK(),
		Params:        req.Params,
		Duration:      elapsed,
	}
	if outcome.Err != nil {
		inv.Error = outcome.Err.Message
	}
	if err := s.recorder.RecordInvocation(ctx, inv); err != nil {
		s.logger.Warn("recording invocation", "tool", req.Tool, "error", err)
	}
}

// correlationString renders an id for storage: strings unquoted, other JSON
// values verbatim.
func correlationString(id json.RawMessage) string {
	if len(id) == 0 || string(id) == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(id, &str); err == nil {
		return str
	}
	return string(id)
}
