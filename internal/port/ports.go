// Package port defines the interfaces (ports) for external collaborators.
// Following hexagonal architecture, these ports decouple the session core
// from the concrete backend transport and from the presentation layer.
package port

import (
	"context"

	"github.com/boddenberg/wallet-session-go/internal/domain"
)

// SessionBackend creates accounts and opens/closes backend sessions.
type SessionBackend interface {
	Signup(ctx context.Context, req *domain.SignupRequest) error
	Login(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
}

// ProfileBackend reads the account snapshot and manages the transaction PIN.
type ProfileBackend interface {
	GetAccount(ctx context.Context) (*domain.AccountSnapshot, error)
	SetPin(ctx context.Context, pin string) error
}

// WalletBackend moves money and reads history.
type WalletBackend interface {
	Credit(ctx context.Context, req *domain.CreditRequest) (*domain.OperationResult, error)
	Transfer(ctx context.Context, req *domain.TransferRequest) (*domain.OperationResult, error)
	ListTransactions(ctx context.Context) ([]domain.Transaction, error)
}

// RequestBackend drives the peer-to-peer payment request protocol.
type RequestBackend interface {
	CreateRequest(ctx context.Context, req *domain.MoneyRequest) (*domain.OperationResult, error)
	ListRequests(ctx context.Context) (*domain.RequestLists, error)
	RespondRequest(ctx context.Context, requestID string, req *domain.RespondRequest) error
}

// UserDirectory searches other wallet holders by email or wallet id.
type UserDirectory interface {
	SearchUsers(ctx context.Context, query string) ([]domain.UserMatch, error)
}

// Backend is the full wallet service contract.
type Backend interface {
	SessionBackend
	ProfileBackend
	WalletBackend
	RequestBackend
	UserDirectory
}

// PinPrompter obtains a transaction PIN out of band (a secure prompt).
// An empty PIN or domain.ErrPromptCancelled means the user declined.
type PinPrompter interface {
	PromptPin(ctx context.Context, reason string) (string, error)
}

// Notifier shows a coarse notification outside any form (an alert).
type Notifier interface {
	Alert(message string)
}

// SessionGuard is the view of the session other components check before
// acting and before applying a response.
type SessionGuard interface {
	Authenticated() bool
	Epoch() uint64
	// Invalidate drops the local session after the backend rejected it,
	// unless epoch no longer names the current session.
	Invalidate(epoch uint64)
}

// CredentialStore holds the transport credentials of the backend session.
type CredentialStore interface {
	ClearSession()
}

// Resetter is implemented by every component holding per-session state.
type Resetter interface {
	Reset()
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Clear()
}
