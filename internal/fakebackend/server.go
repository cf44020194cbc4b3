// Package fakebackend is an in-memory wallet backend speaking the same HTTP
// contract as the real one. walletctl can serve it locally and the
// integration tests run the session core against it.
package fakebackend

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/wallet-session-go/internal/infra/observability"
)

const (
	sessionCookie = "sessionid"
	csrfCookie    = "csrftoken"
	csrfHeader    = "X-CSRFToken"
	maxBodyBytes  = 1 << 20
)

// Options configures a Server. Zero values get usable defaults.
type Options struct {
	JWTSecret      string
	SessionTTL     time.Duration
	BcryptCost     int
	IdempotencyTTL time.Duration
	Idempotency    IdempotencyStore
	Now            func() time.Time
}

// Server holds the fake backend state.
type Server struct {
	ledger *ledger
	idem   IdempotencyStore
	secret []byte
	ttl    time.Duration
	logger *zap.Logger
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

type ctxKey struct{}

// New creates a Server.
func New(opts Options, logger *zap.Logger) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	if opts.Idempotency == nil {
		opts.Idempotency = NewMemoryIdempotency(opts.IdempotencyTTL)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		ledger: newLedger(opts.BcryptCost, opts.Now),
		idem:   opts.Idempotency,
		secret: []byte(opts.JWTSecret),
		ttl:    opts.SessionTTL,
		logger: logger,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(observability.ZapLoggerMiddleware(s.logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/signup/", s.handleSignup)
		r.Post("/login/", s.handleLogin)
		r.Post("/logout/", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/balance/", s.handleBalance)
			r.Post("/set-pin/", s.handleSetPin)
			r.Get("/search-users/", s.handleSearch)
		})
	})

	r.Route("/api/wallets", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Post("/credit/", s.handleCredit)
		r.Post("/transfer/", s.handleTransfer)
		r.Post("/request/", s.handleCreateRequest)
		r.Get("/requests/", s.handleListRequests)
		r.Post("/request/{id}/respond/", s.handleRespond)
		r.Get("/transactions/", s.handleTransactions)
	})

	return r
}

// issueSession sets the session and CSRF cookies for u.
func (s *Server) issueSession(w http.ResponseWriter, u *user) error {
	now := time.Now()
	claims := sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   u.id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return fmt.Errorf("signing session: %w", err)
	}

	csrf := make([]byte, 16)
	if _, err := rand.Read(csrf); err != nil {
		return fmt.Errorf("generating csrf token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name: sessionCookie, Value: token, Path: "/",
		HttpOnly: true, SameSite: http.SameSiteLaxMode, Expires: now.Add(s.ttl),
	})
	http.SetCookie(w, &http.Cookie{
		Name: csrfCookie, Value: hex.EncodeToString(csrf), Path: "/",
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func clearSession(w http.ResponseWriter) {
	for _, name := range []string{sessionCookie, csrfCookie} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1})
	}
}

// sessionFrom resolves the session cookie to a live user.
func (s *Server) sessionFrom(r *http.Request) (*user, *sessionClaims, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil || c.Value == "" {
		return nil, nil, false
	}

	claims := &sessionClaims{}
	_, err = jwt.ParseWithClaims(c.Value, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		s.logger.Debug("rejected session token", zap.Error(err))
		return nil, nil, false
	}
	if s.ledger.isRevoked(claims.ID) {
		return nil, nil, false
	}
	u, ok := s.ledger.user(claims.Subject)
	if !ok {
		return nil, nil, false
	}
	return u, claims, true
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _, ok := s.sessionFrom(r)
		if !ok {
			writeAPIError(w, errNotAuthenticated)
			return
		}
		if r.Method != http.MethodGet && !csrfValid(r) {
			writeAPIError(w, detail(http.StatusForbidden, "CSRF Failed: CSRF token missing or incorrect."))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, u)))
	})
}

func csrfValid(r *http.Request) bool {
	c, err := r.Cookie(csrfCookie)
	if err != nil || c.Value == "" {
		return false
	}
	return r.Header.Get(csrfHeader) == c.Value
}

func currentUser(r *http.Request) *user {
	u, _ := r.Context().Value(ctxKey{}).(*user)
	return u
}

// decode reads a JSON object body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return detail(http.StatusBadRequest, "JSON parse error - "+err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeAPIError(w http.ResponseWriter, err *apiError) {
	writeJSON(w, err.status, err.body)
}

// fail renders err, which is either an *apiError or an internal failure.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		writeAPIError(w, apiErr)
		return
	}
	s.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, map[string]any{"detail": "A server error occurred."})
}
