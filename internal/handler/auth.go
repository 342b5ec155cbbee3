package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/model"
	"github.com/Shivanand-hulikatti/ticket-marketplace/internal/service"
)

type principalKey struct{}

// Claims is the token payload issued by the user service. UserID falls back
// to the subject, then to the email.
type Claims struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator constructs an Authenticator. An empty issuer accepts any.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Verify parses a token and returns the caller it identifies.
func (a *Authenticator) Verify(token string) (model.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return model.Principal{}, err
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		id = claims.Email
	}
	if id == "" {
		return model.Principal{}, errors.New("token does not identify a user")
	}
	role, err := model.ParseRole(claims.Role)
	if err != nil {
		return model.Principal{}, err
	}
	return model.Principal{UserID: id, Email: claims.Email, Role: role}, nil
}

// Authenticate rejects requests without a valid bearer token and stores the
// caller in the request context.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "access token required")
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid authorization format")
			return
		}

		p, err := a.Verify(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "token expired"
			}
			log.WithError(err).Debug("Rejected bearer token")
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, msg)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireRole allows only callers holding one of roles.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "access token required")
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, service.CodeForbidden,
				fmt.Sprintf("role %s may not perform this action", p.Role))
		})
	}
}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated caller, if any.
func PrincipalFrom(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(model.Principal)
	return p, ok
}

func principal(r *http.Request) model.Principal {
	p, _ := PrincipalFrom(r.Context())
	return p
}
