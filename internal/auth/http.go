package auth

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// Rejection reasons reported to the OnReject hook.
const (
	ReasonMissing   = "missing"
	ReasonMalformed = "malformed"
	ReasonInvalid   = "invalid"
)

// Middleware gates every HTTP request behind bearer-token verification, except
// for the configured bypass paths.
type Middleware struct {
	tokens   *TokenService
	bypass   map[string]struct{}
	logger   logrus.FieldLogger
	onReject func(reason string)
}

// NewMiddleware builds a Middleware. Requests whose path exactly equals one of
// bypassPaths skip verification.
func NewMiddleware(tokens *TokenService, logger logrus.FieldLogger, bypassPaths ...string) *Middleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	bypass := make(map[string]struct{}, len(bypassPaths))
	for _, p := range bypassPaths {
		bypass[p] = struct{}{}
	}
	return &Middleware{tokens: tokens, bypass: bypass, logger: logger}
}

// OnReject registers a hook invoked with the reason of each rejected request.
func (m *Middleware) OnReject(fn func(reason string)) *Middleware {
	m.onReject = fn
	return m
}

// Handler wraps next. Any failure produces 401 with an empty body.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := m.bypass[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		if header == "" {
			m.reject(w, r, ReasonMissing, nil)
			return
		}
		tok, err := ParseBearer(header)
		if err != nil {
			m.reject(w, r, ReasonMalformed, err)
			return
		}
		claims, err := m.tokens.Verify(tok)
		if err != nil {
			m.reject(w, r, ReasonInvalid, err)
			return
		}

		p := &Principal{UserID: claims.UserID, Username: claims.Username}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

func (m *Middleware) reject(w http.ResponseWriter, r *http.Request, reason string, err error) {
	entry := m.logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"reason": reason,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Debug("request rejected by auth middleware")
	if m.onReject != nil {
		m.onReject(reason)
	}
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
}
