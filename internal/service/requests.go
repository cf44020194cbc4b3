package service

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/wallet-session-go/internal/domain"
	"github.com/boddenberg/wallet-session-go/internal/infra/observability"
	"github.com/boddenberg/wallet-session-go/internal/port"
)

// ActionableRequest is an incoming payment request bound to its actions.
type ActionableRequest struct {
	RequestID    string
	Counterparty string
	Amount       domain.Money

	Accept func(ctx context.Context) error
	Reject func(ctx context.Context) error
}

// RequestManager drives user search and the payment request protocol:
// create, list both directions, and respond to incoming requests.
//
// Requests are never resolved locally. An accepted or rejected request
// disappears only when the next successful list no longer contains it.
type RequestManager struct {
	backend  port.RequestBackend
	users    port.UserDirectory
	prompter port.PinPrompter
	notifier port.Notifier
	cache    port.Cache[[]domain.UserMatch] // nil disables caching
	guard    port.SessionGuard
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu sync.Mutex

	search      domain.SearchView
	searchQuery string
	searchGen   generation

	incoming domain.RequestListView
	outgoing domain.RequestListView
	listGen  generation

	form    domain.MoneyRequestForm
	formMsg string
}

// NewRequestManager creates a manager with empty lists. cache may be nil.
func NewRequestManager(
	backend port.RequestBackend,
	users port.UserDirectory,
	prompter port.PinPrompter,
	notifier port.Notifier,
	cache port.Cache[[]domain.UserMatch],
	guard port.SessionGuard,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *RequestManager {
	m := &RequestManager{
		backend:  backend,
		users:    users,
		prompter: prompter,
		notifier: notifier,
		cache:    cache,
		guard:    guard,
		metrics:  metrics,
		logger:   logger,
	}
	m.resetLocked()
	return m
}

// ============================================================
// Search
// ============================================================

// Search looks up other wallet holders. A blank query prompts for input
// without calling the backend.
func (m *RequestManager) Search(ctx context.Context, query string) error {
	ctx, span := tracer.Start(ctx, "RequestManager.Search")
	defer span.End()

	epoch, err := sessionEpoch(m.guard, "search users")
	if err != nil {
		return err
	}

	q := strings.TrimSpace(query)

	m.mu.Lock()
	st := m.searchGen.next(epoch)
	m.searchQuery = query
	if q == "" {
		m.search = domain.SearchView{Status: domain.ViewPrompt}
		m.mu.Unlock()
		return nil
	}
	m.search = domain.SearchView{Status: domain.ViewLoading}
	m.mu.Unlock()

	if m.cache != nil {
		if hit, ok := m.cache.Get(q); ok {
			m.metrics.IncrCacheHit("search")
			m.applySearch(st, hit, nil)
			return nil
		}
		m.metrics.IncrCacheMiss("search")
	}

	matches, err := m.users.SearchUsers(ctx, q)
	if err != nil {
		dropIfRejected(m.guard, epoch, err)
	} else if m.cache != nil && epoch == m.guard.Epoch() {
		m.cache.Set(q, matches)
	}
	span.SetAttributes(attribute.Int("search.results", len(matches)))

	m.applySearch(st, matches, err)
	return err
}

func (m *RequestManager) applySearch(st stamp, matches []domain.UserMatch, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.searchGen.current(st, m.guard) {
		m.metrics.IncrStaleResponse("search")
		return
	}
	switch {
	case err != nil:
		m.search = domain.SearchView{Status: domain.ViewFailed}
		m.logger.Warn("user search failed", zap.Error(err))
	case len(matches) == 0:
		m.search = domain.SearchView{Status: domain.ViewEmpty}
	default:
		m.search = domain.SearchView{Status: domain.ViewReady, Results: matches}
		m.searchQuery = ""
	}
}

// SearchResults returns the search view and the query field.
func (m *RequestManager) SearchResults() (domain.SearchView, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.search, m.searchQuery
}

// ============================================================
// Listing
// ============================================================

// ListRequests fetches both directions in one call. On failure the lists
// keep whatever the last successful fetch showed.
func (m *RequestManager) ListRequests(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "RequestManager.ListRequests")
	defer span.End()

	epoch, err := sessionEpoch(m.guard, "list requests")
	if err != nil {
		return err
	}

	m.mu.Lock()
	st := m.listGen.next(epoch)
	m.mu.Unlock()

	lists, err := m.backend.ListRequests(ctx)
	if err != nil {
		dropIfRejected(m.guard, epoch, err)
		m.logger.Warn("request list fetch failed", zap.Error(err))
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.listGen.current(st, m.guard) {
		m.metrics.IncrStaleResponse("requests")
		return nil
	}
	m.incoming = listView(domain.DirectionIncoming, lists.Incoming)
	m.outgoing = listView(domain.DirectionOutgoing, lists.Outgoing)
	return nil
}

func listView(dir domain.RequestDirection, items []domain.PaymentRequest) domain.RequestListView {
	if len(items) == 0 {
		return domain.RequestListView{Direction: dir, Status: domain.ViewEmpty}
	}
	return domain.RequestListView{Direction: dir, Status: domain.ViewReady, Items: items}
}

// IncomingView returns the incoming list as last fetched.
func (m *RequestManager) IncomingView() domain.RequestListView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incoming
}

// OutgoingView returns the outgoing list as last fetched.
func (m *RequestManager) OutgoingView() domain.RequestListView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outgoing
}

// Incoming returns the incoming requests with their accept and reject
// actions bound to each request id.
func (m *RequestManager) Incoming() []ActionableRequest {
	m.mu.Lock()
	items := m.incoming.Items
	m.mu.Unlock()

	out := make([]ActionableRequest, 0, len(items))
	for _, r := range items {
		id := r.RequestID
		out = append(out, ActionableRequest{
			RequestID:    id,
			Counterparty: r.Counterparty,
			Amount:       r.Amount,
			Accept: func(ctx context.Context) error {
				return m.RespondRequest(ctx, id, domain.ActionAccept)
			},
			Reject: func(ctx context.Context) error {
				return m.RespondRequest(ctx, id, domain.ActionReject)
			},
		})
	}
	return out
}

// ============================================================
// Create & respond
// ============================================================

// CreateRequest asks another wallet holder for amount (major units). The
// amount is floored to whole minor units.
func (m *RequestManager) CreateRequest(ctx context.Context, to, amount, note string) error {
	ctx, span := tracer.Start(ctx, "RequestManager.CreateRequest")
	defer span.End()

	epoch, err := sessionEpoch(m.guard, "create request")
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.form = domain.MoneyRequestForm{To: to, Amount: amount, Note: note}
	m.formMsg = ""
	m.mu.Unlock()

	to = strings.TrimSpace(to)
	var invalid *domain.ErrValidation
	major, parseErr := domain.ParseAmount(amount)
	switch {
	case to == "" || strings.TrimSpace(amount) == "":
		invalid = &domain.ErrValidation{Field: "request", Message: "Recipient and amount required"}
	case parseErr != nil:
		invalid = &domain.ErrValidation{Field: "amount", Message: "Amount must be a number"}
	}
	if invalid != nil {
		m.finish(epoch, func() { m.formMsg = invalid.Message })
		m.metrics.IncrOperation("create_request", "invalid")
		return invalid
	}

	req := &domain.MoneyRequest{To: to, Amount: domain.FloorMoneyFromMajor(major), Note: note}
	if _, err := m.backend.CreateRequest(ctx, req); err != nil {
		dropIfRejected(m.guard, epoch, err)
		m.finish(epoch, func() { m.formMsg = Normalize(err, fallbackFailure) })
		m.metrics.IncrOperation("create_request", "failure")
		return err
	}

	m.finish(epoch, func() {
		m.form = domain.MoneyRequestForm{}
		m.formMsg = "Request sent"
	})
	m.metrics.IncrOperation("create_request", "success")

	if err := m.ListRequests(ctx); err != nil {
		m.logger.Debug("request list refresh after create failed", zap.Error(err))
	}
	return nil
}

// RequestForm returns the request fields and their message.
func (m *RequestManager) RequestForm() (domain.MoneyRequestForm, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.form, m.formMsg
}

// RespondRequest accepts or rejects an incoming request. Accepting asks the
// prompter for the transaction PIN; without one nothing is sent. A failed
// call raises a single "Action failed" alert and leaves the lists as they are.
func (m *RequestManager) RespondRequest(ctx context.Context, requestID string, action domain.RequestAction) error {
	ctx, span := tracer.Start(ctx, "RequestManager.RespondRequest")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("request.action", string(action)),
	)

	epoch, err := sessionEpoch(m.guard, "respond to request")
	if err != nil {
		return err
	}
	if action != domain.ActionAccept && action != domain.ActionReject {
		return &domain.ErrValidation{Field: "action", Message: "Action must be ACCEPT or REJECT"}
	}

	req := &domain.RespondRequest{Action: action}
	if action == domain.ActionAccept {
		pin, err := m.prompter.PromptPin(ctx, "Enter PIN")
		if err != nil && !errors.Is(err, domain.ErrPromptCancelled) {
			m.logger.Debug("pin prompt failed", zap.Error(err))
		}
		if err != nil || pin == "" {
			return domain.ErrPromptCancelled
		}
		req.Pin = pin
	}

	if err := m.backend.RespondRequest(ctx, requestID, req); err != nil {
		dropIfRejected(m.guard, epoch, err)
		if epoch == m.guard.Epoch() {
			m.notifier.Alert("Action failed")
		}
		m.metrics.IncrOperation("respond_request", "failure")
		return err
	}
	m.metrics.IncrOperation("respond_request", "success")

	if err := m.ListRequests(ctx); err != nil {
		m.logger.Debug("request list refresh after respond failed", zap.Error(err))
	}
	return nil
}

func (m *RequestManager) finish(epoch uint64, apply func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch == m.guard.Epoch() {
		apply()
	}
}

// Reset empties search, lists, fields and messages and drops cached searches.
func (m *RequestManager) Reset() {
	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
	if m.cache != nil {
		m.cache.Clear()
	}
}

func (m *RequestManager) resetLocked() {
	m.search = domain.SearchView{}
	m.searchQuery = ""
	m.incoming = domain.RequestListView{Direction: domain.DirectionIncoming}
	m.outgoing = domain.RequestListView{Direction: domain.DirectionOutgoing}
	m.form = domain.MoneyRequestForm{}
	m.formMsg = ""
}
