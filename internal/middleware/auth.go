package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type contextKey string

const AdminSubjectKey contextKey = "admin_subject"

const (
	tokenTypeUpload = "upload"
	tokenTypeAdmin  = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// JWTAuth signs the tokens the tool hands out: single-use upload tokens
// embedded in the JNLP file, and admin tokens for operator endpoints.
type JWTAuth struct {
	Secret []byte
}

func NewJWTAuth(secret string) *JWTAuth {
	return &JWTAuth{Secret: []byte(secret)}
}

// GenerateUploadToken binds a token to one session. Single use is enforced
// by the session store, not by the token.
func (j *JWTAuth) GenerateUploadToken(sessionID string, lifetime time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"typ": tokenTypeUpload,
		"sid": sessionID,
		"jti": uuid.NewString(),
		"exp": time.Now().Add(lifetime).Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

// VerifyUploadToken checks signature, expiry and that the token belongs to
// sessionID.
func (j *JWTAuth) VerifyUploadToken(tokenStr, sessionID string) error {
	claims, err := j.parse(tokenStr)
	if err != nil {
		return err
	}
	if typ, _ := claims["typ"].(string); typ != tokenTypeUpload {
		return ErrInvalidToken
	}
	if sid, _ := claims["sid"].(string); sid != sessionID {
		return ErrInvalidToken
	}
	return nil
}

// GenerateAdminToken creates a token for the operator endpoints.
func (j *JWTAuth) GenerateAdminToken(subject string, lifetime time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"typ": tokenTypeAdmin,
		"sub": subject,
		"exp": time.Now().Add(lifetime).Unix(),
		"iat": time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(j.Secret)
}

func (j *JWTAuth) parse(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return j.Secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// AdminMiddleware requires a Bearer admin token.
func (j *JWTAuth) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenStr, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing authorization header", r)
			return
		}

		claims, err := j.parse(tokenStr)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired", r)
			} else {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token", r)
			}
			return
		}

		if typ, _ := claims["typ"].(string); typ != tokenTypeAdmin {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "Admin token required", r)
			return
		}

		subject, _ := claims["sub"].(string)
		ctx := context.WithValue(r.Context(), AdminSubjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UploadToken extracts the upload token from the Authorization header,
// the X-Upload-Token header or the "token" query parameter.
func UploadToken(r *http.Request) string {
	if tok, ok := bearerToken(r); ok {
		return tok
	}
	if tok := r.Header.Get("X-Upload-Token"); tok != "" {
		return tok
	}
	return r.URL.Query().Get("token")
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func writeError(w http.ResponseWriter, status int, code, message string, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":       code,
			"message":    message,
			"request_id": requestID,
		},
	})
}
