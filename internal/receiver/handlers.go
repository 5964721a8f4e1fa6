package receiver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/conversion-replay/internal/core"
	"github.com/JonMunkholm/conversion-replay/internal/dispatch"
	"github.com/JonMunkholm/conversion-replay/internal/logging"
)

// MaxBodySize bounds request bodies.
const MaxBodySize = 10 << 20

// RejectMessage is returned for injected failures.
const RejectMessage = "Member not found for the supplied identifier (stub receiver)"

// ErrorResponse is the JSON body of a rejected request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

var (
	errEmptyBatch   = errors.New("request has no elements")
	errUnauthorized = errors.New("missing bearer token")
)

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload core.FlatPayload
	if err := decode(r, &payload); err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	logger := logging.FromContext(r.Context())
	if s.nextRejected() {
		s.count(1, 1)
		logger.Info("webhook event rejected", "email", logging.RedactEmail(payload[core.FieldEmail]))
		respondError(w, r, errors.New(RejectMessage), http.StatusBadRequest)
		return
	}

	s.count(1, 0)
	logger.Debug("webhook event accepted", "email", logging.RedactEmail(payload[core.FieldEmail]))
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		respondError(w, r, errUnauthorized, http.StatusUnauthorized)
		return
	}

	var req struct {
		Elements []json.RawMessage `json:"elements"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	if len(req.Elements) == 0 {
		respondError(w, r, errEmptyBatch, http.StatusBadRequest)
		return
	}

	resp := dispatch.BatchResponse{Elements: make([]dispatch.ElementStatus, len(req.Elements))}
	rejected := 0
	for i := range req.Elements {
		if s.nextRejected() {
			rejected++
			resp.Elements[i] = dispatch.ElementStatus{
				Status: http.StatusBadRequest,
				Error:  &dispatch.ElementError{Message: RejectMessage},
			}
			continue
		}
		resp.Elements[i] = dispatch.ElementStatus{
			Status: http.StatusCreated,
			ID:     "urn:lla:llaPartnerConversionEvent:" + uuid.NewString(),
		}
	}
	s.count(len(req.Elements), rejected)

	logging.FromContext(r.Context()).Info("batch received",
		"elements", len(req.Elements),
		"rejected", rejected,
		"version", r.Header.Get("LinkedIn-Version"),
	)
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.Stats())
}

func decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodySize))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// respondError logs err with the request ID and writes an ErrorResponse.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	userMsg := core.MapFailure(status, err.Error())

	logging.FromContext(r.Context()).Warn("request rejected",
		"path", r.URL.Path,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	respondJSON(w, status, ErrorResponse{
		Error:   err.Error(),
		Message: userMsg.Message,
		Code:    userMsg.Code,
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
