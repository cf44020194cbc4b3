package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/boddenberg/wallet-session-go/internal/domain"
	"github.com/boddenberg/wallet-session-go/internal/infra/observability"
	"github.com/boddenberg/wallet-session-go/internal/service"
)

// --- Mocks ---

type respondCall struct {
	id  string
	req domain.RespondRequest
}

// mockBackend records every call and answers from its fields.
type mockBackend struct {
	mu    sync.Mutex
	calls map[string]int

	// onCall runs before the answer is produced; n is the 1-based call
	// number for op. It may block.
	onCall func(ctx context.Context, op string, n int)

	signupErr   error
	loginErr    error
	logoutErr   error
	account     *domain.AccountSnapshot
	accountErr  error
	setPinErr   error
	creditRes   *domain.OperationResult
	creditErr   error
	transferRes *domain.OperationResult
	transferErr error
	txns        []domain.Transaction
	txnsFor     func(n int) []domain.Transaction
	txnErr      error
	lists       *domain.RequestLists
	listErr     error
	createErr   error
	respondErr  error
	matches     []domain.UserMatch
	searchErr   error

	credits   []domain.CreditRequest
	transfers []domain.TransferRequest
	created   []domain.MoneyRequest
	responds  []respondCall
	pins      []string
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		calls: make(map[string]int),
		account: &domain.AccountSnapshot{
			Profile: domain.Profile{FirstName: "Ann", Email: "a@x.com", WalletID: "WLT-ANN001"},
			Balance: 12345,
		},
		creditRes:   &domain.OperationResult{Message: "Wallet credited successfully"},
		transferRes: &domain.OperationResult{Message: "Transfer successful"},
		lists:       &domain.RequestLists{},
	}
}

func (m *mockBackend) record(ctx context.Context, op string) int {
	m.mu.Lock()
	m.calls[op]++
	n := m.calls[op]
	hook := m.onCall
	m.mu.Unlock()
	if hook != nil {
		hook(ctx, op, n)
	}
	return n
}

func (m *mockBackend) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *mockBackend) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func (m *mockBackend) Signup(ctx context.Context, _ *domain.SignupRequest) error {
	m.record(ctx, "signup")
	return m.signupErr
}

func (m *mockBackend) Login(ctx context.Context, _, _ string) error {
	m.record(ctx, "login")
	return m.loginErr
}

func (m *mockBackend) Logout(ctx context.Context) error {
	m.record(ctx, "logout")
	return m.logoutErr
}

func (m *mockBackend) GetAccount(ctx context.Context) (*domain.AccountSnapshot, error) {
	m.record(ctx, "get_account")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.accountErr != nil {
		return nil, m.accountErr
	}
	acct := *m.account
	return &acct, nil
}

func (m *mockBackend) SetPin(ctx context.Context, pin string) error {
	m.record(ctx, "set_pin")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pins = append(m.pins, pin)
	return m.setPinErr
}

func (m *mockBackend) Credit(ctx context.Context, req *domain.CreditRequest) (*domain.OperationResult, error) {
	m.record(ctx, "credit")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credits = append(m.credits, *req)
	if m.creditErr != nil {
		return nil, m.creditErr
	}
	return m.creditRes, nil
}

func (m *mockBackend) Transfer(ctx context.Context, req *domain.TransferRequest) (*domain.OperationResult, error) {
	m.record(ctx, "transfer")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transfers = append(m.transfers, *req)
	if m.transferErr != nil {
		return nil, m.transferErr
	}
	return m.transferRes, nil
}

func (m *mockBackend) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	n := m.record(ctx, "list_transactions")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.txnErr != nil {
		return nil, m.txnErr
	}
	if m.txnsFor != nil {
		return m.txnsFor(n), nil
	}
	return m.txns, nil
}

func (m *mockBackend) CreateRequest(ctx context.Context, req *domain.MoneyRequest) (*domain.OperationResult, error) {
	m.record(ctx, "create_request")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, *req)
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &domain.OperationResult{Message: "Money request created"}, nil
}

func (m *mockBackend) ListRequests(ctx context.Context) (*domain.RequestLists, error) {
	m.record(ctx, "list_requests")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	lists := *m.lists
	return &lists, nil
}

func (m *mockBackend) RespondRequest(ctx context.Context, id string, req *domain.RespondRequest) error {
	m.record(ctx, "respond_request")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responds = append(m.responds, respondCall{id: id, req: *req})
	return m.respondErr
}

func (m *mockBackend) SearchUsers(ctx context.Context, _ string) ([]domain.UserMatch, error) {
	m.record(ctx, "search_users")
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matches, m.searchErr
}

func (m *mockBackend) set(fn func(m *mockBackend)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

type mockCredentials struct {
	cleared atomic.Int32
}

func (c *mockCredentials) ClearSession() { c.cleared.Add(1) }

type mockPrompter struct {
	pin   string
	err   error
	calls atomic.Int32
}

func (p *mockPrompter) PromptPin(_ context.Context, _ string) (string, error) {
	p.calls.Add(1)
	return p.pin, p.err
}

type mockNotifier struct {
	mu     sync.Mutex
	alerts []string
}

func (n *mockNotifier) Alert(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, msg)
}

func (n *mockNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.alerts...)
}

// --- Fixture ---

type fixture struct {
	app      *service.App
	backend  *mockBackend
	creds    *mockCredentials
	prompter *mockPrompter
	notifier *mockNotifier
	metrics  *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend:  newMockBackend(),
		creds:    &mockCredentials{},
		prompter: &mockPrompter{},
		notifier: &mockNotifier{},
		metrics:  observability.NewMetrics(),
	}
	f.app = service.NewApp(f.backend, f.creds, f.prompter, f.notifier, service.Options{
		SearchCacheTTL: time.Minute,
		LogoutTimeout:  time.Second,
	}, f.metrics, zap.NewNop())
	t.Cleanup(f.app.Close)
	return f
}

// loggedIn returns a fixture whose session is authenticated, with the
// post-login refreshes already done and the call counters cleared.
func loggedIn(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	if err := f.app.Session.Login(context.Background(), "a@x.com", "p"); err != nil {
		t.Fatalf("login: %v", err)
	}
	f.backend.set(func(m *mockBackend) { m.calls = make(map[string]int) })
	return f
}

func rejection(status int, payload domain.ErrorPayload) error {
	return &domain.ErrBackendRejection{Operation: "test", Status: status, Payload: payload}
}
