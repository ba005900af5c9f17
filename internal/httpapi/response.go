package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/steplog"
)

const (
	errorCodeUnauthorized        = "unauthorized"
	errorCodePolicyRejected      = "policy_rejected"
	errorCodeInvalidRequest      = "invalid_request"
	errorCodeConflict            = "conflict"
	errorCodeLLMUnavailable      = "llm_unavailable"
	errorCodePlatformUnavailable = "platform_unavailable"
	errorCodePersistence         = "persistence_error"
	errorCodeRuntime             = "runtime_error"
)

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type stepsResponse struct {
	RunID      string          `json:"run_id"`
	TotalSteps int             `json:"total_steps"`
	Steps      []steplog.Entry `json:"steps"`
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code := mapRuntimeError(err)
	writeJSON(w, status, apiErrorResponse{Error: apiError{Code: code, Message: err.Error()}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSONBody(r *http.Request, dst any) error {
	if r.Body == nil {
		return invalidRequestError("request body is required")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return fmt.Errorf("%w: request body exceeds %d bytes", ErrRequestTooLarge, maxBytesErr.Limit)
		}
		if errors.Is(err, io.EOF) {
			return invalidRequestError("request body is required")
		}
		return invalidRequestError(fmt.Sprintf("invalid JSON body: %v", err))
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return invalidRequestError("request body must contain exactly one JSON object")
	}
	return nil
}

func mapRuntimeError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorCodeUnauthorized
	case errors.Is(err, ErrRequestTooLarge):
		return http.StatusRequestEntityTooLarge, errorCodePolicyRejected
	case errors.Is(err, ErrRequestTimedOut):
		return http.StatusRequestTimeout, errorCodePolicyRejected
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, agent.ErrValidation),
		errors.Is(err, agent.ErrInvalidThreadID),
		errors.Is(err, steplog.ErrEmptyRunID):
		return http.StatusBadRequest, errorCodeInvalidRequest
	case errors.Is(err, agent.ErrCheckpointConflict):
		return http.StatusConflict, errorCodeConflict
	case errors.Is(err, agent.ErrLLMUnavailable):
		return http.StatusBadGateway, errorCodeLLMUnavailable
	case errors.Is(err, agent.ErrPlatformUnavailable):
		return http.StatusServiceUnavailable, errorCodePlatformUnavailable
	case errors.Is(err, agent.ErrPersistence):
		return http.StatusInternalServerError, errorCodePersistence
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, errorCodePolicyRejected
	default:
		return http.StatusInternalServerError, errorCodeRuntime
	}
}

func invalidRequestError(message string) error {
	return fmt.Errorf("%w: %s", errInvalidRequest, message)
}
