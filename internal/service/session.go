// Package service holds the client session core: the session state
// machine, profile, navigation, wallet operations and payment requests.
// Every component checks the session before calling the backend and
// re-checks it before applying a response.
package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boddenberg/wallet-session-go/internal/domain"
	"github.com/boddenberg/wallet-session-go/internal/infra/observability"
	"github.com/boddenberg/wallet-session-go/internal/port"
)

var tracer = otel.Tracer("service")

// SessionController owns the authentication state machine. It is the
// port.SessionGuard every other component consults.
type SessionController struct {
	backend       port.SessionBackend
	credentials   port.CredentialStore
	logoutTimeout time.Duration
	metrics       *observability.Metrics
	logger        *zap.Logger

	// set by Bind
	profile   *ProfileStore
	nav       *Navigator
	requests  *RequestManager
	resetters []port.Resetter

	epoch atomic.Uint64

	mu         sync.Mutex
	mode       domain.SessionMode
	message    string
	loginForm  domain.LoginForm
	signupForm domain.SignupForm
}

var _ port.SessionGuard = (*SessionController)(nil)

// NewSessionController creates a controller in ANONYMOUS_LOGIN mode.
func NewSessionController(
	backend port.SessionBackend,
	credentials port.CredentialStore,
	logoutTimeout time.Duration,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *SessionController {
	return &SessionController{
		backend:       backend,
		credentials:   credentials,
		logoutTimeout: logoutTimeout,
		metrics:       metrics,
		logger:        logger,
		mode:          domain.ModeAnonymousLogin,
	}
}

// Bind connects the components driven after login and registers every
// component whose state is cleared when the session ends.
func (s *SessionController) Bind(profile *ProfileStore, nav *Navigator, requests *RequestManager, resetters ...port.Resetter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
	s.nav = nav
	s.requests = requests
	s.resetters = resetters
}

// Mode returns the current state.
func (s *SessionController) Mode() domain.SessionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Authenticated reports whether a session is established.
func (s *SessionController) Authenticated() bool {
	return s.Mode() == domain.ModeAuthenticated
}

// Epoch changes whenever a session starts or ends.
func (s *SessionController) Epoch() uint64 {
	return s.epoch.Load()
}

// Message is the text shown under the login and signup forms.
func (s *SessionController) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// Forms returns the login and signup fields as last submitted.
func (s *SessionController) Forms() (domain.LoginForm, domain.SignupForm) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginForm, s.signupForm
}

// ToggleMode switches between the login and signup forms. It does nothing
// outside the two anonymous modes.
func (s *SessionController) ToggleMode() domain.SessionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.mode {
	case domain.ModeAnonymousLogin:
		s.mode = domain.ModeAnonymousSignup
		s.message = ""
	case domain.ModeAnonymousSignup:
		s.mode = domain.ModeAnonymousLogin
		s.message = ""
	}
	return s.mode
}

// Signup creates an account. It never logs in.
func (s *SessionController) Signup(ctx context.Context, form domain.SignupForm) error {
	ctx, span := tracer.Start(ctx, "SessionController.Signup")
	defer span.End()

	s.mu.Lock()
	if !s.mode.Anonymous() {
		from := s.mode
		s.mu.Unlock()
		return &domain.ErrInvalidTransition{From: from, Operation: "sign up"}
	}
	s.signupForm = form
	s.message = ""
	s.mu.Unlock()

	var invalid *domain.ErrValidation
	switch {
	case blank(form.FirstName, form.LastName, form.Email, form.Password, form.PasswordConfirm):
		invalid = &domain.ErrValidation{Field: "signup", Message: "All fields are required"}
	case form.Password != form.PasswordConfirm:
		invalid = &domain.ErrValidation{Field: "password_confirm", Message: "Passwords do not match"}
	}
	if invalid != nil {
		s.setMessage(invalid.Message)
		s.metrics.IncrOperation("signup", "invalid")
		return invalid
	}

	err := s.backend.Signup(ctx, &domain.SignupRequest{
		FirstName: strings.TrimSpace(form.FirstName),
		LastName:  strings.TrimSpace(form.LastName),
		Email:     strings.TrimSpace(form.Email),
		Password:  form.Password,
	})
	if err != nil {
		s.setMessage(Normalize(err, "Signup failed"))
		s.metrics.IncrOperation("signup", "failure")
		return err
	}

	s.mu.Lock()
	s.signupForm = domain.SignupForm{}
	s.message = "Account created. Please log in."
	s.mu.Unlock()
	s.metrics.IncrOperation("signup", "success")
	s.logger.Info("account created", zap.String("email", form.Email))
	return nil
}

// Login authenticates and then loads the profile, shows the balance section
// and refreshes the request lists. Failures of those follow-up loads only
// affect their views.
func (s *SessionController) Login(ctx context.Context, email, password string) error {
	ctx, span := tracer.Start(ctx, "SessionController.Login")
	defer span.End()

	s.mu.Lock()
	if !s.mode.Anonymous() {
		from := s.mode
		s.mu.Unlock()
		return &domain.ErrInvalidTransition{From: from, Operation: "log in"}
	}
	s.loginForm = domain.LoginForm{Email: email, Password: password}
	s.message = ""
	if blank(email, password) {
		s.message = "Email and password are required"
		s.mu.Unlock()
		s.metrics.IncrOperation("login", "invalid")
		return &domain.ErrValidation{Field: "login", Message: "Email and password are required"}
	}
	prior := s.mode
	s.mode = domain.ModeAuthenticating
	started := s.epoch.Load()
	s.mu.Unlock()

	err := s.backend.Login(ctx, strings.TrimSpace(email), password)

	s.mu.Lock()
	if s.mode != domain.ModeAuthenticating || s.epoch.Load() != started {
		// logged out while the call was in flight; a newer login owns the
		// credentials unless the session is still anonymous
		orphaned := err == nil && s.mode.Anonymous()
		s.mu.Unlock()
		if orphaned {
			s.dropOrphanedSession(ctx)
		}
		return &domain.ErrInvalidTransition{From: domain.ModeAnonymousLogin, Operation: "complete login"}
	}
	if err != nil {
		s.mode = prior
		s.message = Normalize(err, "Login failed")
		s.mu.Unlock()
		s.metrics.IncrOperation("login", "failure")
		return err
	}
	s.mode = domain.ModeAuthenticated
	epoch := s.epoch.Add(1)
	s.loginForm = domain.LoginForm{}
	s.mu.Unlock()

	s.metrics.IncrOperation("login", "success")
	s.logger.Info("logged in", zap.String("email", email))

	s.afterLogin(ctx, epoch)
	return nil
}

func (s *SessionController) afterLogin(ctx context.Context, epoch uint64) {
	s.mu.Lock()
	profile, nav, requests := s.profile, s.nav, s.requests
	s.mu.Unlock()
	if profile == nil || nav == nil || requests == nil {
		return
	}

	if err := profile.Load(ctx); err != nil {
		s.logger.Warn("profile load after login failed", zap.Error(err))
	}
	refreshBalance, ok := nav.enter(epoch, domain.SectionBalance)
	if !ok {
		return
	}

	var g errgroup.Group
	g.Go(func() error { return refreshBalance(ctx) })
	g.Go(func() error { return requests.ListRequests(ctx) })
	if err := g.Wait(); err != nil {
		s.logger.Warn("initial refresh after login failed", zap.Error(err))
	}
}

// Logout ends the session locally no matter what the backend answers.
func (s *SessionController) Logout(ctx context.Context) {
	ctx, span := tracer.Start(ctx, "SessionController.Logout")
	defer span.End()

	if s.Authenticated() {
		callCtx, cancel := context.WithTimeout(ctx, s.logoutTimeout)
		err := s.backend.Logout(callCtx)
		cancel()
		if err != nil {
			s.logger.Warn("backend logout failed", zap.Error(err))
		}
	}

	s.endSession("")
	s.metrics.IncrOperation("logout", "success")
	s.logger.Info("logged out")
}

// dropOrphanedSession ends the backend session opened by a login that
// completed after a logout.
func (s *SessionController) dropOrphanedSession(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.logoutTimeout)
	defer cancel()
	if err := s.backend.Logout(callCtx); err != nil {
		s.logger.Warn("logout of orphaned session failed", zap.Error(err))
	}
	s.credentials.ClearSession()
}

// Invalidate ends the session without calling the backend, after the
// backend rejected a call made under epoch. Rejections from an earlier
// session are ignored.
func (s *SessionController) Invalidate(epoch uint64) {
	s.mu.Lock()
	if s.mode != domain.ModeAuthenticated || epoch != s.epoch.Load() {
		s.mu.Unlock()
		return
	}
	resetters := s.endLocked("Session expired. Please log in again.")
	s.mu.Unlock()

	s.logger.Warn("backend rejected the session")
	s.clear(resetters)
}

// endSession returns to ANONYMOUS_LOGIN and clears every component.
func (s *SessionController) endSession(message string) {
	s.mu.Lock()
	resetters := s.endLocked(message)
	s.mu.Unlock()
	s.clear(resetters)
}

func (s *SessionController) endLocked(message string) []port.Resetter {
	s.mode = domain.ModeAnonymousLogin
	s.epoch.Add(1)
	s.loginForm = domain.LoginForm{}
	s.signupForm = domain.SignupForm{}
	s.message = message
	return append([]port.Resetter(nil), s.resetters...)
}

func (s *SessionController) clear(resetters []port.Resetter) {
	s.credentials.ClearSession()
	for _, r := range resetters {
		r.Reset()
	}
}

func (s *SessionController) setMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = msg
}

func blank(fields ...string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return true
		}
	}
	return false
}
