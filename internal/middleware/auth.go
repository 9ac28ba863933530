package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dukerupert/recipebox/internal/auth"
)

// StateSource is the part of auth.Provider the middleware reads.
type StateSource interface {
	Ready() <-chan struct{}
	Current(ctx context.Context) auth.State
}

// currentState waits for the initial restore before reading the state.
func currentState(r *http.Request, src StateSource) (auth.State, bool) {
	select {
	case <-src.Ready():
	case <-r.Context().Done():
		return auth.State{}, false
	}
	return src.Current(r.Context()), true
}

func withState(r *http.Request, st auth.State) *http.Request {
	ctx := auth.WithAuth(r.Context(), auth.AuthContext{
		User:    st.User,
		Profile: st.Profile,
		Session: st.Session,
	})
	return r.WithContext(ctx)
}

// LoadAuth attaches the signed-in identity, if any, to every request.
func LoadAuth(src StateSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st, ok := currentState(r, src)
			if !ok {
				return
			}
			if st.Authenticated() {
				r = withState(r, st)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAuth sends anonymous requests to the login page, or answers 401
// for API requests.
func RequireAuth(src StateSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st, ok := currentState(r, src)
			if !ok {
				return
			}
			if !st.Authenticated() {
				if strings.HasPrefix(r.URL.Path, "/api/") {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusUnauthorized)
					w.Write([]byte(`{"error":"You must be signed in"}` + "\n"))
					return
				}
				redirectTo(w, r, "/login")
				return
			}
			next.ServeHTTP(w, withState(r, st))
		})
	}
}

// RequireAnonymous sends signed-in users away from the login and signup pages.
func RequireAnonymous(src StateSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			st, ok := currentState(r, src)
			if !ok {
				return
			}
			if st.Authenticated() {
				redirectTo(w, r, "/")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func redirectTo(w http.ResponseWriter, r *http.Request, path string) {
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", path)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}
