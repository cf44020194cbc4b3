package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/boddenberg/wallet-session-go/internal/domain"
	"github.com/boddenberg/wallet-session-go/internal/port"
)

// Navigator keeps exactly one section active while authenticated and runs
// the refresh tied to entering it.
type Navigator struct {
	guard    port.SessionGuard
	wallet   *WalletOperations
	requests *RequestManager
	logger   *zap.Logger

	mu     sync.Mutex
	active domain.Section
}

// NewNavigator creates a navigator with no active section.
func NewNavigator(guard port.SessionGuard, wallet *WalletOperations, requests *RequestManager, logger *zap.Logger) *Navigator {
	return &Navigator{guard: guard, wallet: wallet, requests: requests, logger: logger}
}

// Activate switches to the section named id (case-insensitive). An unknown
// id returns *domain.ErrNavigation and keeps the current section.
func (n *Navigator) Activate(ctx context.Context, id string) error {
	section, err := domain.ParseSection(id)
	if err != nil {
		return err
	}
	return n.ActivateSection(ctx, section)
}

// ActivateSection switches sections and runs the entry refresh. Refresh
// failures only affect the section's view state and are not returned.
func (n *Navigator) ActivateSection(ctx context.Context, section domain.Section) error {
	ctx, span := tracer.Start(ctx, "Navigator.ActivateSection")
	defer span.End()

	if _, err := domain.ParseSection(string(section)); err != nil {
		return err
	}
	epoch := n.guard.Epoch()
	if !n.guard.Authenticated() {
		return &domain.ErrUnauthenticated{Operation: "navigate"}
	}

	refresh, ok := n.enter(epoch, section)
	if !ok {
		return &domain.ErrUnauthenticated{Operation: "navigate"}
	}
	if err := refresh(ctx); err != nil {
		n.logger.Warn("section refresh failed",
			zap.String("section", string(section)),
			zap.Error(err),
		)
	}
	return nil
}

// enter makes section active and returns its entry refresh. It reports
// false and changes nothing once the session has moved past epoch.
func (n *Navigator) enter(epoch uint64, section domain.Section) (func(context.Context) error, bool) {
	n.mu.Lock()
	if n.guard.Epoch() != epoch {
		n.mu.Unlock()
		return nil, false
	}
	n.active = section
	n.mu.Unlock()

	switch section {
	case domain.SectionBalance:
		return n.wallet.RefreshBalance, true
	case domain.SectionHistory:
		return n.wallet.LoadTransactions, true
	case domain.SectionRequests:
		return n.requests.ListRequests, true
	default:
		return func(context.Context) error { return nil }, true
	}
}

// Active returns the active section, or domain.SectionNone when logged out.
func (n *Navigator) Active() domain.Section {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

// Reset leaves no section active.
func (n *Navigator) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.active = domain.SectionNone
}
