package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/boddenberg/wallet-session-go/internal/domain"
	"github.com/boddenberg/wallet-session-go/internal/service"
)

func TestActivate_EntryRefreshes(t *testing.T) {
	tests := []struct {
		section string
		op      string
	}{
		{"balance", "get_account"},
		{"HISTORY", "list_transactions"},
		{"Requests", "list_requests"},
		{"transfer", ""},
		{"search", ""},
		{"request", ""},
		{"credit", ""},
	}

	for _, tt := range tests {
		t.Run(tt.section, func(t *testing.T) {
			f := loggedIn(t)

			if err := f.app.Nav.Activate(context.Background(), tt.section); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want, _ := domain.ParseSection(tt.section)
			if f.app.Nav.Active() != want {
				t.Errorf("expected %q active, got %q", want, f.app.Nav.Active())
			}

			switch {
			case tt.op == "" && f.backend.total() != 0:
				t.Errorf("expected no fetch, got %d calls", f.backend.total())
			case tt.op != "" && (f.backend.count(tt.op) != 1 || f.backend.total() != 1):
				t.Errorf("expected exactly one %s call, got %d of %d", tt.op, f.backend.count(tt.op), f.backend.total())
			}
		})
	}
}

func TestActivate_UnknownSectionKeepsCurrent(t *testing.T) {
	f := loggedIn(t)
	_ = f.app.Nav.Activate(context.Background(), "history")

	err := f.app.Nav.Activate(context.Background(), "settings")
	var nav *domain.ErrNavigation
	if !errors.As(err, &nav) {
		t.Fatalf("expected ErrNavigation, got %v", err)
	}
	if f.app.Nav.Active() != domain.SectionHistory {
		t.Errorf("expected HISTORY to stay active, got %q", f.app.Nav.Active())
	}
}

func TestActivate_RefreshFailureIsSwallowed(t *testing.T) {
	f := loggedIn(t)
	f.backend.txnErr = &domain.ErrNetwork{Operation: "list_transactions", Err: errors.New("timeout")}

	if err := f.app.Nav.Activate(context.Background(), "history"); err != nil {
		t.Fatalf("entry refresh failure must not be returned, got %v", err)
	}
	if got := f.app.Wallet.History().Status; got != domain.ViewFailed {
		t.Errorf("expected failed history view, got %s", got)
	}
}

func TestActivate_RequiresSession(t *testing.T) {
	f := newFixture(t)

	err := f.app.Nav.Activate(context.Background(), "balance")
	var unauth *domain.ErrUnauthenticated
	if !errors.As(err, &unauth) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if f.app.Nav.Active() != domain.SectionNone || f.backend.total() != 0 {
		t.Error("nothing may happen without a session")
	}
}

// endingGuard reports an authenticated session whose epoch moves right
// after the check, the way a logout landing mid-call would.
type endingGuard struct {
	epoch atomic.Uint64
}

func (g *endingGuard) Authenticated() bool {
	g.epoch.Add(1)
	return true
}

func (g *endingGuard) Epoch() uint64 { return g.epoch.Load() }

func (g *endingGuard) Invalidate(uint64) {}

func TestActivate_SessionEndedAfterCheck(t *testing.T) {
	nav := service.NewNavigator(&endingGuard{}, nil, nil, zap.NewNop())

	err := nav.Activate(context.Background(), "balance")
	var unauth *domain.ErrUnauthenticated
	if !errors.As(err, &unauth) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if nav.Active() != domain.SectionNone {
		t.Errorf("expected no active section, got %q", nav.Active())
	}
}

func TestLogin_LogoutDuringProfileLoadLeavesNoSection(t *testing.T) {
	f := newFixture(t)
	f.backend.onCall = func(_ context.Context, op string, n int) {
		if op == "get_account" && n == 1 {
			f.app.Session.Logout(context.Background())
		}
	}

	if err := f.app.Session.Login(context.Background(), "a@x.com", "p"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if f.app.Session.Authenticated() {
		t.Fatal("expected logged out")
	}
	if f.app.Nav.Active() != domain.SectionNone {
		t.Errorf("expected no active section, got %q", f.app.Nav.Active())
	}
	if f.backend.count("list_requests") != 0 {
		t.Errorf("expected no request refresh after logout, got %d", f.backend.count("list_requests"))
	}
}

func TestProfile_GreetingFallback(t *testing.T) {
	f := newFixture(t)
	f.backend.account.FirstName = ""
	if err := f.app.Session.Login(context.Background(), "a@x.com", "p"); err != nil {
		t.Fatalf("login: %v", err)
	}

	if got := f.app.Profile.Greeting(); got != "Hi there" {
		t.Errorf("expected 'Hi there', got %q", got)
	}
	f.app.Profile.TogglePinPanel()
	if got := f.app.Profile.PinButtonLabel(); got != "Close PIN Form" {
		t.Errorf("expected 'Close PIN Form', got %q", got)
	}
}

func TestAppState(t *testing.T) {
	f := loggedIn(t)

	st := f.app.State()
	if st.Mode != "AUTHENTICATED" || st.Section != "BALANCE" || st.Profile == nil || st.Profile.WalletID != "WLT-ANN001" {
		t.Errorf("unexpected state %+v", st)
	}

	f.app.Session.Logout(context.Background())
	st = f.app.State()
	if st.Mode != "ANONYMOUS_LOGIN" || st.Section != "" || st.Profile != nil {
		t.Errorf("unexpected state after logout %+v", st)
	}
}
