package middleware

import (
	"context"
	"net/http"
	"strings"

	authkit "github.com/verso-cms/authkit"
)

type authUserContextKey struct{}

// UserFromContext returns the authenticated user attached by [Authenticate]
// or [OptionalAuthenticate]. The boolean is false for anonymous requests.
func UserFromContext(ctx context.Context) (*authkit.AuthUser, bool) {
	user, ok := ctx.Value(authUserContextKey{}).(*authkit.AuthUser)
	return user, ok
}

// Authenticate returns middleware that requires a valid bearer access token.
// A missing, malformed, expired, or otherwise rejected token produces a
// uniform 401; the handler never learns which check failed.
func Authenticate(engine *authkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			user, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), authUserContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuthenticate returns middleware that attaches the caller when a
// valid bearer token is present and otherwise forwards the request
// anonymously. An invalid token is treated the same as no token; it is never
// a request-fatal condition here.
func OptionalAuthenticate(engine *authkit.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			user, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), authUserContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authorize returns middleware that requires authentication plus membership
// in the given role allow-list. Unauthenticated requests get 401;
// authenticated callers outside the list get 403. An empty list admits any
// authenticated caller.
func Authorize(engine *authkit.Engine, roles ...authkit.Role) func(http.Handler) http.Handler {
	allowed := make(map[authkit.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		guarded := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if len(allowed) > 0 {
				if _, ok := allowed[user.Role]; !ok {
					http.Error(w, "forbidden", http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
		return Authenticate(engine)(guarded)
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
