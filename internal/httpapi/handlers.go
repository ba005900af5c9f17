package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/steplog"
)

func (h *handlers) handleInvocation(w http.ResponseWriter, r *http.Request) {
	if h.invoker == nil {
		writeMappedError(w, errRuntimeMissing)
		return
	}

	var request agent.Request
	if err := decodeJSONBody(r, &request); err != nil {
		writeMappedError(w, err)
		return
	}

	response, err := h.invoker.Invoke(r.Context(), request)
	if response.ThreadID != "" {
		w.Header().Set(HeaderThreadID, string(response.ThreadID))
	}
	if err != nil {
		writeMappedError(w, requestError(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *handlers) handleSteps(w http.ResponseWriter, r *http.Request) {
	if h.steps == nil {
		writeMappedError(w, errRuntimeMissing)
		return
	}

	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		writeMappedError(w, invalidRequestError("run_id is required"))
		return
	}
	limit := h.policy.DefaultStepLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeMappedError(w, invalidRequestError("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	entries, err := h.steps.List(r.Context(), runID)
	if err != nil {
		writeMappedError(w, requestError(r.Context(), err))
		return
	}
	recent := entries
	if limit > 0 {
		recent = steplog.Tail(entries, limit)
	}
	if recent == nil {
		recent = []steplog.Entry{}
	}
	writeJSON(w, http.StatusOK, stepsResponse{RunID: runID, TotalSteps: len(entries), Steps: recent})
}

// requestError attributes a cancellation to the request timeout when that
// was the cause.
func requestError(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, ErrRequestTimedOut) {
		return errors.Join(err, cause)
	}
	return err
}
