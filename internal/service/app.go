package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/wallet-session-go/internal/domain"
	"github.com/boddenberg/wallet-session-go/internal/infra/cache"
	"github.com/boddenberg/wallet-session-go/internal/infra/observability"
	"github.com/boddenberg/wallet-session-go/internal/port"
)

// Options tunes the session core.
type Options struct {
	// SearchCacheTTL keeps user search results for this long; zero disables caching.
	SearchCacheTTL time.Duration
	// SearchCacheMaxEntries caps cached queries; zero keeps the cache default.
	SearchCacheMaxEntries int
	// LogoutTimeout bounds the best-effort backend logout.
	LogoutTimeout time.Duration
}

// App is the wired session core.
type App struct {
	Session  *SessionController
	Profile  *ProfileStore
	Nav      *Navigator
	Wallet   *WalletOperations
	Requests *RequestManager

	searchCache *cache.InMemory[[]domain.UserMatch]
}

// NewApp builds every component around backend and connects them.
func NewApp(
	backend port.Backend,
	credentials port.CredentialStore,
	prompter port.PinPrompter,
	notifier port.Notifier,
	opts Options,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *App {
	a := &App{}

	var searches port.Cache[[]domain.UserMatch]
	if opts.SearchCacheTTL > 0 {
		var cacheOpts []cache.Option
		if opts.SearchCacheMaxEntries > 0 {
			cacheOpts = append(cacheOpts, cache.WithMaxEntries(opts.SearchCacheMaxEntries))
		}
		a.searchCache = cache.New[[]domain.UserMatch](opts.SearchCacheTTL, cacheOpts...)
		searches = a.searchCache
	}

	a.Session = NewSessionController(backend, credentials, opts.LogoutTimeout, metrics, logger.Named("session"))
	a.Profile = NewProfileStore(backend, a.Session, metrics, logger.Named("profile"))
	a.Wallet = NewWalletOperations(backend, backend, a.Profile, a.Session, metrics, logger.Named("wallet"))
	a.Requests = NewRequestManager(backend, backend, prompter, notifier, searches, a.Session, metrics, logger.Named("requests"))
	a.Nav = NewNavigator(a.Session, a.Wallet, a.Requests, logger.Named("nav"))

	a.Session.Bind(a.Profile, a.Nav, a.Requests, a.Profile, a.Nav, a.Wallet, a.Requests)
	return a
}

// Close stops background work.
func (a *App) Close() {
	if a.searchCache != nil {
		a.searchCache.Close()
	}
}

// SearchCacheSize counts cached search queries; zero when caching is off.
func (a *App) SearchCacheSize() int {
	if a.searchCache == nil {
		return 0
	}
	return a.searchCache.Len()
}

// State is a read-only summary of the session core.
type State struct {
	Mode          string          `json:"mode"`
	Section       string          `json:"section,omitempty"`
	Profile       *domain.Profile `json:"profile,omitempty"`
	Balance       string          `json:"balance,omitempty"`
	IncomingCount int             `json:"incomingRequests"`
	OutgoingCount int             `json:"outgoingRequests"`
}

// State reports the current mode, section and profile.
func (a *App) State() State {
	st := State{
		Mode:          a.Session.Mode().String(),
		Section:       string(a.Nav.Active()),
		Balance:       a.Wallet.Balance().Text(),
		IncomingCount: len(a.Requests.IncomingView().Items),
		OutgoingCount: len(a.Requests.OutgoingView().Items),
	}
	if p, ok := a.Profile.Profile(); ok {
		st.Profile = &p
	}
	return st
}
