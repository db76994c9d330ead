package chi

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nkkko/lista/internal/api/content"
	"github.com/nkkko/lista/internal/api/errors"
	"github.com/nkkko/lista/internal/api/models"
	"github.com/nkkko/lista/internal/api/response"
	"github.com/nkkko/lista/internal/api/validation"
	"github.com/nkkko/lista/pkg/proto"
)

const tokenIssuer = "lista-dev"

// Claims are the fields of tokens issued by the dev backend. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name,omitempty"`
}

type userKey struct{}

// UserFromContext returns the authenticated user of a request
func UserFromContext(ctx context.Context) *proto.User {
	user, _ := ctx.Value(userKey{}).(*proto.User)
	return user
}

// IssueToken signs a token for user
func (a *ChiAPI) IssueToken(user *proto.User) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Id.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.TokenTTL)),
		},
		Name: user.Name,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.config.JWTSecret))
}

// parseToken verifies a bearer token and returns the user id it carries
func (a *ChiAPI) parseToken(raw string) (proto.ID, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(a.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return 0, err
	}
	return proto.ParseID(claims.Subject)
}

// authenticate rejects requests without a valid bearer token and stores the user in the context
func (a *ChiAPI) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			response.Error(w, r, errors.UnauthorizedError("missing_token", "Authentication required"))
			return
		}

		userID, err := a.parseToken(raw)
		if err != nil || userID.IsZero() {
			a.logger.Debug().Err(err).Msg("Rejected bearer token")
			response.Error(w, r, errors.UnauthorizedError("invalid_token", "Invalid or expired token"))
			return
		}

		user, err := a.content.User(r.Context(), userID)
		if err != nil {
			if stderrors.Is(err, content.ErrNotFound) {
				response.Error(w, r, errors.UnauthorizedError("unknown_user", "Unknown user"))
				return
			}
			response.Error(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

// handleDevLogin returns a token for the named user, creating the user on first login
func (a *ChiAPI) handleDevLogin(w http.ResponseWriter, r *http.Request) {
	var req models.DevLoginRequest
	if err := validation.ParseAndValidate(r, &req); err != nil {
		response.Error(w, r, err)
		return
	}

	user, err := a.content.Login(r.Context(), req.Name, req.Email)
	if err != nil {
		response.Error(w, r, err)
		return
	}

	token, err := a.IssueToken(user)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to sign token")
		response.Error(w, r, errors.InternalError("token_failed", "Failed to issue token"))
		return
	}

	response.JSON(w, r, http.StatusOK, models.DevLoginResponse{Token: token, User: user})
}

// handleMe returns the authenticated user
func (a *ChiAPI) handleMe(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, UserFromContext(r.Context()))
}
