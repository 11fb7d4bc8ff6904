package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/slotbook/libs/auth"
	"github.com/md-rashed-zaman/slotbook/libs/httpx"
	"github.com/md-rashed-zaman/slotbook/services/scheduling-service/internal/scheduling"
)

type callerKey struct{}

// Authenticator turns bearer tokens into a scheduling.Caller on the request context.
type Authenticator struct {
	verifier *auth.Verifier
}

func NewAuthenticator(verifier *auth.Verifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// Optional lets anonymous requests through as customers but rejects a token that fails to verify.
func (a *Authenticator) Optional() httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, withCaller(r, scheduling.Caller{Role: auth.RoleCustomer}))
				return
			}
			caller, ok := a.authenticate(w, r)
			if !ok {
				return
			}
			next.ServeHTTP(w, withCaller(r, caller))
		})
	}
}

// RequireRole admits only verified callers holding one of roles.
func (a *Authenticator) RequireRole(roles ...string) httpx.Middleware {
	allowed := map[string]struct{}{}
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, ok := a.authenticate(w, r)
			if !ok {
				return
			}
			if _, ok := allowed[caller.Role]; !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, withCaller(r, caller))
		})
	}
}

func (a *Authenticator) authenticate(w http.ResponseWriter, r *http.Request) (scheduling.Caller, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") || len(strings.TrimSpace(authHeader)) <= len("Bearer ") {
		http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
		return scheduling.Caller{}, false
	}
	if a == nil || a.verifier == nil {
		http.Error(w, "authentication not configured", http.StatusUnauthorized)
		return scheduling.Caller{}, false
	}
	claims, err := a.verifier.Verify(strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")))
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return scheduling.Caller{}, false
	}
	return scheduling.Caller{ID: claims.Sub, Role: claims.Role}, true
}

func withCaller(r *http.Request, c scheduling.Caller) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), callerKey{}, c))
}

// CallerFrom returns the caller stored by the auth middleware, or an anonymous customer.
func CallerFrom(ctx context.Context) scheduling.Caller {
	if c, ok := ctx.Value(callerKey{}).(scheduling.Caller); ok {
		return c
	}
	return scheduling.Caller{Role: auth.RoleCustomer}
}
