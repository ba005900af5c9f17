// Package httpapi exposes the agent invocation interface and the step log
// read endpoint over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/Gurpartap/jobagent/agent"
	"github.com/Gurpartap/jobagent/steplog"
)

// HeaderThreadID carries the resolved thread id of an invocation.
const HeaderThreadID = "X-Thread-ID"

// Invoker runs one agent turn. *agent.Runner implements it.
type Invoker interface {
	Invoke(ctx context.Context, request agent.Request) (agent.Response, error)
}

type PolicyConfig struct {
	AuthToken           string
	MaxRequestBodyBytes int64
	RequestTimeout      time.Duration
	// DefaultStepLimit applies when a steps request has no limit. Zero returns all entries.
	DefaultStepLimit int
}

type handlers struct {
	invoker Invoker
	steps   steplog.Reader
	policy  PolicyConfig
}

func NewRouter(invoker Invoker, steps steplog.Reader, policy PolicyConfig) http.Handler {
	policy = normalizePolicyConfig(policy)
	h := &handlers{invoker: invoker, steps: steps, policy: policy}

	reject := func(w http.ResponseWriter, _ *http.Request, err error) {
		writeMappedError(w, err)
	}
	guarded := chain(
		authMiddleware(policy.AuthToken, reject),
		limitMiddleware(policy),
	)

	mux := http.NewServeMux()
	mux.Handle("POST /v1/invocations", guarded(http.HandlerFunc(h.handleInvocation)))
	mux.Handle("GET /v1/runs/{run_id}/steps", guarded(http.HandlerFunc(h.handleSteps)))
	return mux
}

type middleware func(http.Handler) http.Handler

func chain(middlewares ...middleware) middleware {
	return func(next http.Handler) http.Handler {
		wrapped := next
		for i := len(middlewares) - 1; i >= 0; i-- {
			wrapped = middlewares[i](wrapped)
		}
		return wrapped
	}
}
