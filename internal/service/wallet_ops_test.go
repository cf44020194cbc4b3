package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/boddenberg/wallet-session-go/internal/domain"
)

func TestWalletOps_UnauthenticatedMakesNoCalls(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	errs := []error{
		f.app.Wallet.Credit(ctx, "10"),
		f.app.Wallet.Transfer(ctx, "bob@x.com", "10", "1234"),
		f.app.Wallet.SubmitPin(ctx, "1234", "1234"),
		f.app.Wallet.CheckBalance(ctx),
		f.app.Wallet.LoadTransactions(ctx),
	}
	for i, err := range errs {
		var unauth *domain.ErrUnauthenticated
		if !errors.As(err, &unauth) {
			t.Errorf("call %d: expected ErrUnauthenticated, got %v", i, err)
		}
	}
	if f.backend.total() != 0 {
		t.Errorf("expected zero calls, got %d", f.backend.total())
	}
}

func TestCredit_ZeroIsNoOp(t *testing.T) {
	for _, amount := range []string{"0", "", "  ", "abc", "0.00", "0.001", "92233720368547758.08", "1e20", "184467440737095516.16"} {
		f := loggedIn(t)
		f.backend.creditErr = rejection(400, domain.ErrorPayload{Detail: "earlier failure"})
		_ = f.app.Wallet.Credit(context.Background(), "5")
		_, before := f.app.Wallet.CreditForm()
		f.backend.set(func(m *mockBackend) { m.calls = make(map[string]int) })

		if err := f.app.Wallet.Credit(context.Background(), amount); err != nil {
			t.Errorf("amount %q: expected nil, got %v", amount, err)
		}
		if f.backend.count("credit") != 0 {
			t.Errorf("amount %q: expected no call", amount)
		}
		if _, after := f.app.Wallet.CreditForm(); after != before {
			t.Errorf("amount %q: message changed from %q to %q", amount, before, after)
		}
	}
}

func TestCredit_ConvertsToMinorUnitsWithFreshKeys(t *testing.T) {
	f := loggedIn(t)
	ctx := context.Background()

	if err := f.app.Wallet.Credit(ctx, "12.345"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.app.Wallet.Credit(ctx, "12.345"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.backend.credits) != 2 {
		t.Fatalf("expected 2 credits, got %d", len(f.backend.credits))
	}
	for _, c := range f.backend.credits {
		if c.Amount != 1235 {
			t.Errorf("expected 1235 paise, got %d", c.Amount)
		}
		if !strings.HasPrefix(c.IdempotencyKey, "credit-") {
			t.Errorf("unexpected key %q", c.IdempotencyKey)
		}
	}
	if f.backend.credits[0].IdempotencyKey == f.backend.credits[1].IdempotencyKey {
		t.Error("each submission needs its own idempotency key")
	}

	form, msg := f.app.Wallet.CreditForm()
	if form.Amount != "" {
		t.Errorf("expected amount cleared, got %q", form.Amount)
	}
	if msg != "Wallet credited successfully" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestCredit_FailureKeepsAmount(t *testing.T) {
	f := loggedIn(t)
	f.backend.creditErr = &domain.ErrNetwork{Operation: "credit", Err: errors.New("reset")}

	if err := f.app.Wallet.Credit(context.Background(), "10"); err == nil {
		t.Fatal("expected error")
	}
	form, msg := f.app.Wallet.CreditForm()
	if form.Amount != "10" {
		t.Errorf("expected amount kept, got %q", form.Amount)
	}
	if msg != "Something went wrong" {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestTransfer_ValidationMakesNoCalls(t *testing.T) {
	tests := []struct {
		name             string
		to, amount, pin  string
		wantMessageMatch string
	}{
		{"blank recipient", " ", "10", "1234", "required"},
		{"blank pin", "bob@x.com", "10", "", "required"},
		{"not a number", "bob@x.com", "ten", "1234", "Amount must be a number"},
		{"blank amount", "bob@x.com", "", "1234", "Amount must be a number"},
		{"beyond int64 paise", "bob@x.com", "92233720368547758.08", "1234", "Amount must be a number"},
		{"exponent overflow", "bob@x.com", "1e20", "1234", "Amount must be a number"},
		{"negative overflow", "bob@x.com", "-92233720368547758.09", "1234", "Amount must be a number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := loggedIn(t)
			err := f.app.Wallet.Transfer(context.Background(), tt.to, tt.amount, tt.pin)

			var validation *domain.ErrValidation
			if !errors.As(err, &validation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if f.backend.total() != 0 {
				t.Errorf("expected zero calls, got %d", f.backend.total())
			}
			if _, msg := f.app.Wallet.TransferForm(); !strings.Contains(msg, tt.wantMessageMatch) {
				t.Errorf("message %q does not mention %q", msg, tt.wantMessageMatch)
			}
		})
	}
}

func TestTransfer_Scenario(t *testing.T) {
	f := loggedIn(t)
	f.backend.transferRes = &domain.OperationResult{Message: "Sent"}

	if err := f.app.Wallet.Transfer(context.Background(), "bob@x.com", "50", "1234"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := f.backend.transfers[0]
	if req.Amount != 5000 || req.To != "bob@x.com" || req.Pin != "1234" {
		t.Errorf("unexpected request %+v", req)
	}
	if !strings.HasPrefix(req.IdempotencyKey, "transfer-") {
		t.Errorf("unexpected key %q", req.IdempotencyKey)
	}
	form, msg := f.app.Wallet.TransferForm()
	if form != (domain.TransferForm{}) {
		t.Errorf("expected fields cleared, got %+v", form)
	}
	if msg != "Sent" {
		t.Errorf("expected 'Sent', got %q", msg)
	}
}

func TestTransfer_EmptyRejectionFallsBack(t *testing.T) {
	f := loggedIn(t)
	f.backend.transferErr = rejection(400, domain.ErrorPayload{})

	if err := f.app.Wallet.Transfer(context.Background(), "bob@x.com", "50", "1234"); err == nil {
		t.Fatal("expected error")
	}
	form, msg := f.app.Wallet.TransferForm()
	if msg != "Something went wrong" {
		t.Errorf("expected fallback, got %q", msg)
	}
	if form != (domain.TransferForm{To: "bob@x.com", Amount: "50", Pin: "1234"}) {
		t.Errorf("expected fields kept, got %+v", form)
	}
}

func TestSubmitPin(t *testing.T) {
	t.Run("mismatch", func(t *testing.T) {
		f := loggedIn(t)
		for _, pins := range [][2]string{{"", ""}, {"1234", "4321"}} {
			err := f.app.Wallet.SubmitPin(context.Background(), pins[0], pins[1])
			var validation *domain.ErrValidation
			if !errors.As(err, &validation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if _, msg := f.app.Wallet.PinForm(); msg != "PINs must match" {
				t.Errorf("unexpected message %q", msg)
			}
		}
		if f.backend.total() != 0 {
			t.Errorf("expected zero calls, got %d", f.backend.total())
		}
	})

	t.Run("success", func(t *testing.T) {
		f := loggedIn(t)
		f.app.Profile.TogglePinPanel()

		if err := f.app.Wallet.SubmitPin(context.Background(), "1234", "1234"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		form, msg := f.app.Wallet.PinForm()
		if form != (domain.PinForm{}) || msg != "PIN updated successfully" {
			t.Errorf("unexpected form state %+v %q", form, msg)
		}
		if f.app.Profile.PinPanelOpen() {
			t.Error("expected PIN panel closed")
		}
		if p, _ := f.app.Profile.Profile(); !p.HasPin {
			t.Error("expected HasPin after success")
		}
		if got := f.app.Profile.PinButtonLabel(); got != "Change Transaction PIN" {
			t.Errorf("unexpected label %q", got)
		}
	})

	t.Run("failure hides backend detail", func(t *testing.T) {
		f := loggedIn(t)
		f.backend.setPinErr = rejection(400, domain.ErrorPayload{Detail: "PIN must contain only digits"})

		if err := f.app.Wallet.SubmitPin(context.Background(), "abcd", "abcd"); err == nil {
			t.Fatal("expected error")
		}
		form, msg := f.app.Wallet.PinForm()
		if msg != "Failed to update PIN" {
			t.Errorf("unexpected message %q", msg)
		}
		if form.Pin1 != "abcd" {
			t.Error("expected fields kept on failure")
		}
	})
}

func TestBalance_CheckVersusRefresh(t *testing.T) {
	f := loggedIn(t)
	f.backend.accountErr = &domain.ErrNetwork{Operation: "get_account", Err: errors.New("timeout")}

	_ = f.app.Wallet.CheckBalance(context.Background())
	if got := f.app.Wallet.Balance().Text(); got != "Error" {
		t.Errorf("explicit check failure should show 'Error', got %q", got)
	}

	_ = f.app.Wallet.RefreshBalance(context.Background())
	if got := f.app.Wallet.Balance().Text(); got != "" {
		t.Errorf("refresh failure should clear the display, got %q", got)
	}
}

func TestBalance_LoadingThenValue(t *testing.T) {
	f := loggedIn(t)
	release := make(chan struct{})
	f.backend.onCall = func(_ context.Context, op string, _ int) {
		if op == "get_account" {
			<-release
		}
	}

	done := make(chan error, 1)
	go func() { done <- f.app.Wallet.CheckBalance(context.Background()) }()

	waitFor(t, func() bool { return f.app.Wallet.Balance().Status == domain.ViewLoading })
	if got := f.app.Wallet.Balance().Text(); got != "Loading..." {
		t.Errorf("expected 'Loading...', got %q", got)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.app.Wallet.Balance().Text(); got != "₹ 123.45" {
		t.Errorf("unexpected balance text %q", got)
	}
}

func TestLoadTransactions_States(t *testing.T) {
	f := loggedIn(t)
	ctx := context.Background()

	_ = f.app.Wallet.LoadTransactions(ctx)
	if got := f.app.Wallet.History().Text(); got != "No transactions" {
		t.Errorf("expected empty history text, got %q", got)
	}

	f.backend.txns = []domain.Transaction{{Timestamp: "2024-01-01 10:00:00", Type: domain.TransactionDebit, Amount: 5000, CounterpartyEmail: "bob@x.com", Reference: "REF-1A2B3C4D"}}
	_ = f.app.Wallet.LoadTransactions(ctx)
	if got := f.app.Wallet.History(); got.Status != domain.ViewReady || len(got.Items) != 1 {
		t.Errorf("expected one entry, got %+v", got)
	}

	f.backend.txnErr = &domain.ErrNetwork{Operation: "list_transactions", Err: errors.New("timeout")}
	_ = f.app.Wallet.LoadTransactions(ctx)
	if got := f.app.Wallet.History().Text(); got != "Failed to load transactions" {
		t.Errorf("expected failure text, got %q", got)
	}
}

func TestLoadTransactions_DiscardsStaleResponse(t *testing.T) {
	f := loggedIn(t)
	release := make(chan struct{})
	f.backend.onCall = func(_ context.Context, op string, n int) {
		if op == "list_transactions" && n == 1 {
			<-release
		}
	}
	f.backend.txnsFor = func(n int) []domain.Transaction {
		return []domain.Transaction{{Reference: map[int]string{1: "REF-OLD", 2: "REF-NEW"}[n]}}
	}

	first := make(chan error, 1)
	go func() { first <- f.app.Wallet.LoadTransactions(context.Background()) }()
	waitFor(t, func() bool { return f.backend.count("list_transactions") == 1 })

	if err := f.app.Wallet.LoadTransactions(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	close(release)
	<-first

	got := f.app.Wallet.History()
	if len(got.Items) != 1 || got.Items[0].Reference != "REF-NEW" {
		t.Errorf("late response overwrote newer data: %+v", got.Items)
	}
	if f.metrics.StaleCount("history") != 1 {
		t.Errorf("expected one stale response, got %v", f.metrics.StaleCount("history"))
	}
}

func TestBalance_ResponseAfterLogoutIsIgnored(t *testing.T) {
	f := loggedIn(t)
	release := make(chan struct{})
	f.backend.onCall = func(_ context.Context, op string, _ int) {
		if op == "get_account" {
			<-release
		}
	}

	done := make(chan error, 1)
	go func() { done <- f.app.Wallet.CheckBalance(context.Background()) }()
	waitFor(t, func() bool { return f.backend.count("get_account") == 1 })

	f.app.Session.Logout(context.Background())
	close(release)
	<-done

	if got := f.app.Wallet.Balance(); got != (domain.BalanceView{}) {
		t.Errorf("expected balance to stay empty after logout, got %+v", got)
	}
}
