package service

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/wallet-session-go/internal/domain"
	"github.com/boddenberg/wallet-session-go/internal/infra/observability"
	"github.com/boddenberg/wallet-session-go/internal/port"
)

// ProfileStore holds the authenticated user's profile snapshot and the
// open/closed state of the PIN panel.
type ProfileStore struct {
	backend port.ProfileBackend
	guard   port.SessionGuard
	metrics *observability.Metrics
	logger  *zap.Logger

	mu           sync.Mutex
	profile      *domain.Profile
	pinPanelOpen bool
	loads        generation
}

// NewProfileStore creates an empty profile store.
func NewProfileStore(backend port.ProfileBackend, guard port.SessionGuard, metrics *observability.Metrics, logger *zap.Logger) *ProfileStore {
	return &ProfileStore{backend: backend, guard: guard, metrics: metrics, logger: logger}
}

// Load fetches the profile and replaces the snapshot.
func (p *ProfileStore) Load(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "ProfileStore.Load")
	defer span.End()

	epoch, err := sessionEpoch(p.guard, "load profile")
	if err != nil {
		return err
	}

	p.mu.Lock()
	st := p.loads.next(epoch)
	p.mu.Unlock()

	acct, err := p.backend.GetAccount(ctx)
	if err != nil {
		dropIfRejected(p.guard, epoch, err)
		return err
	}
	span.SetAttributes(attribute.String("wallet.id", acct.WalletID))

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.loads.current(st, p.guard) {
		p.metrics.IncrStaleResponse("profile")
		return nil
	}
	profile := acct.Profile
	p.profile = &profile
	return nil
}

// Profile returns the current snapshot and whether one is loaded.
func (p *ProfileStore) Profile() (domain.Profile, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profile == nil {
		return domain.Profile{}, false
	}
	return *p.profile, true
}

// Greeting is the profile panel headline. It is empty when no profile is loaded.
func (p *ProfileStore) Greeting() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profile == nil {
		return ""
	}
	name := p.profile.FirstName
	if name == "" {
		name = "there"
	}
	return "Hi " + name
}

// PinButtonLabel is the caption of the button that opens the PIN panel.
func (p *ProfileStore) PinButtonLabel() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.pinPanelOpen:
		return "Close PIN Form"
	case p.profile != nil && p.profile.HasPin:
		return "Change Transaction PIN"
	default:
		return "Set Transaction PIN"
	}
}

// TogglePinPanel opens or closes the PIN panel and reports the new state.
func (p *ProfileStore) TogglePinPanel() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pinPanelOpen = !p.pinPanelOpen
	return p.pinPanelOpen
}

// PinPanelOpen reports whether the PIN panel is showing.
func (p *ProfileStore) PinPanelOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pinPanelOpen
}

// pinSet records a successful PIN change and closes the panel.
func (p *ProfileStore) pinSet() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.profile != nil {
		p.profile.HasPin = true
	}
	p.pinPanelOpen = false
}

// Reset forgets the profile.
func (p *ProfileStore) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profile = nil
	p.pinPanelOpen = false
}
