package service

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/boddenberg/wallet-session-go/internal/domain"
	"github.com/boddenberg/wallet-session-go/internal/infra/observability"
	"github.com/boddenberg/wallet-session-go/internal/port"
)

const fallbackFailure = "Something went wrong"

// WalletOperations covers the balance and history views and the
// money-moving forms: credit, transfer and PIN change.
//
// It is the only place that converts user-entered major units into the
// minor units sent to the backend.
type WalletOperations struct {
	wallet   port.WalletBackend
	accounts port.ProfileBackend
	profile  *ProfileStore
	guard    port.SessionGuard
	metrics  *observability.Metrics
	logger   *zap.Logger

	mu sync.Mutex

	balance     domain.BalanceView
	balanceGen  generation
	history     domain.HistoryView
	historyGen  generation
	credit      domain.CreditForm
	creditMsg   string
	transfer    domain.TransferForm
	transferMsg string
	pin         domain.PinForm
	pinMsg      string
}

// NewWalletOperations creates the service with empty views and forms.
func NewWalletOperations(
	wallet port.WalletBackend,
	accounts port.ProfileBackend,
	profile *ProfileStore,
	guard port.SessionGuard,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *WalletOperations {
	return &WalletOperations{
		wallet:   wallet,
		accounts: accounts,
		profile:  profile,
		guard:    guard,
		metrics:  metrics,
		logger:   logger,
	}
}

// newIdempotencyKey returns a fresh key for one user-initiated submission.
func newIdempotencyKey(prefix string) string {
	return prefix + "-" + uuid.Must(uuid.NewV7()).String()
}

// ============================================================
// Balance & history
// ============================================================

// CheckBalance is the explicit balance button: a failure shows "Error".
func (w *WalletOperations) CheckBalance(ctx context.Context) error {
	return w.fetchBalance(ctx, "WalletOperations.CheckBalance", domain.ViewFailed)
}

// RefreshBalance runs on entering the balance section: a failure leaves the
// display empty.
func (w *WalletOperations) RefreshBalance(ctx context.Context) error {
	return w.fetchBalance(ctx, "WalletOperations.RefreshBalance", domain.ViewIdle)
}

func (w *WalletOperations) fetchBalance(ctx context.Context, spanName string, onFailure domain.ViewStatus) error {
	ctx, span := tracer.Start(ctx, spanName)
	defer span.End()

	epoch, err := sessionEpoch(w.guard, "check balance")
	if err != nil {
		return err
	}

	w.mu.Lock()
	st := w.balanceGen.next(epoch)
	w.balance = domain.BalanceView{Status: domain.ViewLoading}
	w.mu.Unlock()

	acct, err := w.accounts.GetAccount(ctx)
	if err != nil {
		dropIfRejected(w.guard, epoch, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.balanceGen.current(st, w.guard) {
		w.metrics.IncrStaleResponse("balance")
		return err
	}
	if err != nil {
		w.balance = domain.BalanceView{Status: onFailure}
		w.logger.Warn("balance fetch failed", zap.Error(err))
		return err
	}
	w.balance = domain.BalanceView{Status: domain.ViewReady, Amount: acct.Balance}
	return nil
}

// Balance returns the balance panel state.
func (w *WalletOperations) Balance() domain.BalanceView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

// LoadTransactions refreshes the history list.
func (w *WalletOperations) LoadTransactions(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "WalletOperations.LoadTransactions")
	defer span.End()

	epoch, err := sessionEpoch(w.guard, "load transactions")
	if err != nil {
		return err
	}

	w.mu.Lock()
	st := w.historyGen.next(epoch)
	w.history = domain.HistoryView{Status: domain.ViewLoading}
	w.mu.Unlock()

	txns, err := w.wallet.ListTransactions(ctx)
	if err != nil {
		dropIfRejected(w.guard, epoch, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.historyGen.current(st, w.guard) {
		w.metrics.IncrStaleResponse("history")
		return err
	}
	switch {
	case err != nil:
		w.history = domain.HistoryView{Status: domain.ViewFailed}
		w.logger.Warn("transaction history fetch failed", zap.Error(err))
		return err
	case len(txns) == 0:
		w.history = domain.HistoryView{Status: domain.ViewEmpty}
	default:
		w.history = domain.HistoryView{Status: domain.ViewReady, Items: txns}
	}
	return nil
}

// History returns the history list state.
func (w *WalletOperations) History() domain.HistoryView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.history
}

// ============================================================
// Credit
// ============================================================

// Credit adds amount (major units) to the wallet. An empty, unparsable or
// zero amount is ignored without a call or a message change.
func (w *WalletOperations) Credit(ctx context.Context, amount string) error {
	ctx, span := tracer.Start(ctx, "WalletOperations.Credit")
	defer span.End()

	epoch, err := sessionEpoch(w.guard, "credit")
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.credit = domain.CreditForm{Amount: amount}
	w.mu.Unlock()

	major, err := domain.ParseAmount(amount)
	if err != nil {
		return nil
	}
	minor := domain.MoneyFromMajor(major)
	if minor == 0 {
		return nil
	}

	w.mu.Lock()
	w.creditMsg = ""
	w.mu.Unlock()

	req := &domain.CreditRequest{Amount: minor, IdempotencyKey: newIdempotencyKey("credit")}
	span.SetAttributes(attribute.String("idempotency.key", req.IdempotencyKey))

	res, err := w.wallet.Credit(ctx, req)
	if err != nil {
		dropIfRejected(w.guard, epoch, err)
		w.finish(epoch, func() { w.creditMsg = Normalize(err, fallbackFailure) })
		w.metrics.IncrOperation("credit", "failure")
		return err
	}

	w.finish(epoch, func() {
		w.credit = domain.CreditForm{}
		w.creditMsg = res.Message
	})
	w.metrics.IncrOperation("credit", "success")
	w.logger.Info("wallet credited", zap.String("amount", minor.String()))
	return nil
}

// CreditForm returns the credit field and its message.
func (w *WalletOperations) CreditForm() (domain.CreditForm, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.credit, w.creditMsg
}

// ============================================================
// Transfer
// ============================================================

// Transfer sends amount (major units) to a wallet addressed by email or wallet id.
func (w *WalletOperations) Transfer(ctx context.Context, to, amount, pin string) error {
	ctx, span := tracer.Start(ctx, "WalletOperations.Transfer")
	defer span.End()

	epoch, err := sessionEpoch(w.guard, "transfer")
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.transfer = domain.TransferForm{To: to, Amount: amount, Pin: pin}
	w.transferMsg = ""
	w.mu.Unlock()

	to = strings.TrimSpace(to)
	var invalid *domain.ErrValidation
	major, parseErr := domain.ParseAmount(amount)
	switch {
	case to == "" || strings.TrimSpace(pin) == "":
		invalid = &domain.ErrValidation{Field: "transfer", Message: "Recipient, amount and PIN are required"}
	case parseErr != nil:
		invalid = &domain.ErrValidation{Field: "amount", Message: "Amount must be a number"}
	}
	if invalid != nil {
		w.finish(epoch, func() { w.transferMsg = invalid.Message })
		w.metrics.IncrOperation("transfer", "invalid")
		return invalid
	}

	req := &domain.TransferRequest{
		To:             to,
		Amount:         domain.MoneyFromMajor(major),
		Pin:            pin,
		IdempotencyKey: newIdempotencyKey("transfer"),
	}
	span.SetAttributes(attribute.String("idempotency.key", req.IdempotencyKey))

	res, err := w.wallet.Transfer(ctx, req)
	if err != nil {
		dropIfRejected(w.guard, epoch, err)
		w.finish(epoch, func() { w.transferMsg = Normalize(err, fallbackFailure) })
		w.metrics.IncrOperation("transfer", "failure")
		return err
	}

	w.finish(epoch, func() {
		w.transfer = domain.TransferForm{}
		w.transferMsg = res.Message
	})
	w.metrics.IncrOperation("transfer", "success")
	w.logger.Info("transfer sent", zap.String("amount", req.Amount.String()))
	return nil
}

// TransferForm returns the transfer fields and their message.
func (w *WalletOperations) TransferForm() (domain.TransferForm, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.transfer, w.transferMsg
}

// ============================================================
// Transaction PIN
// ============================================================

// SubmitPin sets the transaction PIN. Backend failures are reported with a
// fixed message rather than the backend's own text.
func (w *WalletOperations) SubmitPin(ctx context.Context, pin1, pin2 string) error {
	ctx, span := tracer.Start(ctx, "WalletOperations.SubmitPin")
	defer span.End()

	epoch, err := sessionEpoch(w.guard, "set pin")
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.pin = domain.PinForm{Pin1: pin1, Pin2: pin2}
	w.pinMsg = ""
	w.mu.Unlock()

	if pin1 == "" || pin1 != pin2 {
		invalid := &domain.ErrValidation{Field: "pin", Message: "PINs must match"}
		w.finish(epoch, func() { w.pinMsg = invalid.Message })
		w.metrics.IncrOperation("set_pin", "invalid")
		return invalid
	}

	if err := w.accounts.SetPin(ctx, pin1); err != nil {
		dropIfRejected(w.guard, epoch, err)
		w.finish(epoch, func() { w.pinMsg = "Failed to update PIN" })
		w.metrics.IncrOperation("set_pin", "failure")
		return err
	}

	if w.finish(epoch, func() {
		w.pin = domain.PinForm{}
		w.pinMsg = "PIN updated successfully"
	}) {
		w.profile.pinSet()
	}
	w.metrics.IncrOperation("set_pin", "success")
	return nil
}

// PinForm returns the PIN fields and their message.
func (w *WalletOperations) PinForm() (domain.PinForm, string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pin, w.pinMsg
}

// finish applies a form outcome unless the session changed meanwhile, and
// reports whether it did.
func (w *WalletOperations) finish(epoch uint64, apply func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if epoch != w.guard.Epoch() {
		return false
	}
	apply()
	return true
}

// Reset empties every view, field and message.
func (w *WalletOperations) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance = domain.BalanceView{}
	w.history = domain.HistoryView{}
	w.credit, w.creditMsg = domain.CreditForm{}, ""
	w.transfer, w.transferMsg = domain.TransferForm{}, ""
	w.pin, w.pinMsg = domain.PinForm{}, ""
}
