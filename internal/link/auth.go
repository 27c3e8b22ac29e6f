package link

import (
	"context"
	"net/http"

	"github.com/golang-jwt/jwt/v4"

	"github.com/andrewwphillips/eggclient/internal/operation"
)

// HeaderName is the request header that carries the token
const HeaderName = "x-jwt"

const (
	subjectClaim = "sub"
	userIDClaim  = "jti" // some servers put the user ID here instead of "sub"
)

// Auth returns middleware that calls resolve for every operation and puts the token it
// returns in the operation's HeaderName header (empty if there is no token).
func Auth(resolve func() string) Middleware {
	return func(next Handler) Handler {
		return HandlerFunc(func(ctx context.Context, op *operation.Operation) <-chan *operation.Result {
			if op.Headers == nil {
				op.Headers = make(http.Header)
			}
			op.Headers.Set(HeaderName, resolve())
			return next.Execute(ctx, op)
		})
	}
}

// TokenSubject returns who a JWT was issued to (its "sub" or else "jti" claim) so that
// logs can identify the user without containing the token. The signature is not checked,
// and "" is returned if the token can't be decoded.
func TokenSubject(token string) string {
	if token == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return ""
	}
	for _, name := range []string{subjectClaim, userIDClaim} {
		if s, ok := claims[name].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
