package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultMaxRequestBodyBytes = 1 << 20
	DefaultRequestTimeout      = 120 * time.Second
)

var (
	ErrUnauthorized    = errors.New("authentication failed")
	ErrRequestTooLarge = errors.New("request body too large")
	ErrRequestTimedOut = errors.New("request timeout exceeded")
	errInvalidRequest  = errors.New("invalid request")
	errRuntimeMissing  = errors.New("runtime is not configured")
)

type rejectFunc func(http.ResponseWriter, *http.Request, error)

func normalizePolicyConfig(cfg PolicyConfig) PolicyConfig {
	if cfg.MaxRequestBodyBytes <= 0 {
		cfg.MaxRequestBodyBytes = DefaultMaxRequestBodyBytes
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.DefaultStepLimit < 0 {
		cfg.DefaultStepLimit = 0
	}
	return cfg
}

// authMiddleware is a no-op for an empty token.
func authMiddleware(token string, reject rejectFunc) middleware {
	expected := strings.TrimSpace(token)
	if expected == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	expectedHeader := "Bearer " + expected

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimSpace(r.Header.Get("Authorization")) != expectedHeader {
				reject(w, r, fmt.Errorf("%w: missing or invalid bearer token", ErrUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func limitMiddleware(cfg PolicyConfig) middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxRequestBodyBytes)
			}
			ctx, cancel := context.WithTimeoutCause(r.Context(), cfg.RequestTimeout, ErrRequestTimedOut)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MaxRequestBodyBytes: DefaultMaxRequestBodyBytes,
		RequestTimeout:      DefaultRequestTimeout,
	}
}
