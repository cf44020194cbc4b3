package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/boddenberg/wallet-session-go/internal/domain"
	"github.com/boddenberg/wallet-session-go/internal/infra/observability"
	"github.com/boddenberg/wallet-session-go/internal/service"
)

type command struct {
	usage string
	help  string
	auth  bool
	run   func(ctx context.Context, args []string) error
}

// shell is the interactive presentation binding of the session core.
type shell struct {
	app      *service.App
	metrics  *observability.Metrics
	con      *console
	commands map[string]command
	done     bool
}

var errUsage = errors.New("usage")

func newShell(app *service.App, metrics *observability.Metrics, con *console) *shell {
	s := &shell{app: app, metrics: metrics, con: con}
	s.commands = map[string]command{
		"login":    {"login [email]", "log in", false, s.login},
		"signup":   {"signup", "create an account", false, s.signup},
		"toggle":   {"toggle", "switch between the login and signup forms", false, s.toggle},
		"logout":   {"logout", "log out and forget everything", true, s.logout},
		"go":       {"go <section>", "open a section (balance, transfer, search, request, requests, history, credit)", true, s.goTo},
		"balance":  {"balance", "check the balance", true, s.balance},
		"credit":   {"credit <amount>", "add money to the wallet", true, s.credit},
		"transfer": {"transfer <to> <amount>", "send money to an email or wallet id", true, s.transfer},
		"pin":      {"pin", "set or change the transaction PIN", true, s.pin},
		"search":   {"search <query>", "find users by email or wallet id", true, s.search},
		"request":  {"request <to> <amount> [note]", "ask someone for money", true, s.request},
		"requests": {"requests", "list pending requests", true, s.requests},
		"accept":   {"accept <n|id>", "pay an incoming request", true, s.respond(domain.ActionAccept)},
		"reject":   {"reject <n|id>", "decline an incoming request", true, s.respond(domain.ActionReject)},
		"history":  {"history", "show transactions", true, s.history},
		"state":    {"state", "print the session state as JSON", false, s.state},
		"stats":    {"stats", "print client counters", false, s.stats},
		"help":     {"help", "list commands", false, s.help},
		"quit":     {"quit", "leave the shell", false, s.quit},
	}
	s.commands["exit"] = s.commands["quit"]
	return s
}

func (s *shell) prompt() string {
	if !s.app.Session.Authenticated() {
		if s.app.Session.Mode() == domain.ModeAnonymousSignup {
			return "wallet(signup)> "
		}
		return "wallet> "
	}
	if sec := s.app.Nav.Active(); sec != domain.SectionNone {
		return fmt.Sprintf("wallet[%s]> ", strings.ToLower(string(sec)))
	}
	return "wallet> "
}

func (s *shell) run(ctx context.Context) error {
	s.con.printf("walletctl %s. Type 'help' for commands.\n", version)
	for !s.done {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, ok := s.con.readLine(s.prompt())
		if !ok {
			s.con.printf("\n")
			break
		}
		s.exec(ctx, line)
	}
	if s.app.Session.Authenticated() {
		s.app.Session.Logout(ctx)
	}
	return nil
}

func (s *shell) exec(ctx context.Context, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	cmd, ok := s.commands[name]
	if !ok {
		s.con.printf("unknown command %q, try 'help'\n", name)
		return
	}
	if cmd.auth && !s.app.Session.Authenticated() {
		s.con.printf("Please log in first.\n")
		return
	}
	if err := cmd.run(ctx, args); errors.Is(err, errUsage) {
		s.con.printf("usage: %s\n", cmd.usage)
	}
}

// report prints msg, or a normalized err when there is no message.
func (s *shell) report(msg string, err error) {
	switch {
	case msg != "":
		s.con.printf("%s\n", msg)
	case err != nil && !errors.Is(err, domain.ErrPromptCancelled):
		s.con.printf("%s\n", service.Normalize(err, "Something went wrong"))
	}
}

func (s *shell) login(ctx context.Context, args []string) error {
	switch s.app.Session.Mode() {
	case domain.ModeAnonymousSignup:
		s.app.Session.ToggleMode()
	case domain.ModeAuthenticated, domain.ModeAuthenticating:
		s.con.printf("Already logged in.\n")
		return nil
	}
	email := strings.Join(args, " ")
	if email == "" {
		email, _ = s.con.readLine("Email: ")
	}
	password, _ := s.con.readSecret("Password: ")

	if err := s.app.Session.Login(ctx, email, password); err != nil {
		s.report(s.app.Session.Message(), err)
		return nil
	}
	s.con.printf("%s\n", s.app.Profile.Greeting())
	s.con.printf("[%s]\n", s.app.Profile.PinButtonLabel())
	s.renderSection()
	return nil
}

func (s *shell) signup(ctx context.Context, _ []string) error {
	if s.app.Session.Mode() != domain.ModeAnonymousSignup {
		s.app.Session.ToggleMode()
	}
	var form domain.SignupForm
	form.FirstName, _ = s.con.readLine("First name: ")
	form.LastName, _ = s.con.readLine("Last name: ")
	form.Email, _ = s.con.readLine("Email: ")
	form.Password, _ = s.con.readSecret("Password: ")
	form.PasswordConfirm, _ = s.con.readSecret("Confirm password: ")

	err := s.app.Session.Signup(ctx, form)
	s.report(s.app.Session.Message(), err)
	return nil
}

func (s *shell) toggle(_ context.Context, _ []string) error {
	switch s.app.Session.ToggleMode() {
	case domain.ModeAnonymousLogin:
		s.con.printf("Login form.\n")
	case domain.ModeAnonymousSignup:
		s.con.printf("Signup form.\n")
	default:
		s.con.printf("Already logged in.\n")
	}
	return nil
}

func (s *shell) logout(ctx context.Context, _ []string) error {
	s.app.Session.Logout(ctx)
	s.con.printf("Logged out.\n")
	return nil
}

func (s *shell) goTo(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := s.app.Nav.Activate(ctx, args[0]); err != nil {
		s.report("", err)
		return nil
	}
	s.renderSection()
	return nil
}

func (s *shell) renderSection() {
	switch s.app.Nav.Active() {
	case domain.SectionBalance:
		s.renderBalance()
	case domain.SectionHistory:
		s.renderHistory()
	case domain.SectionRequests:
		s.renderRequests()
	case domain.SectionSearch:
		s.renderSearch()
	}
}

func (s *shell) balance(ctx context.Context, _ []string) error {
	s.app.Wallet.CheckBalance(ctx)
	s.renderBalance()
	return nil
}

func (s *shell) renderBalance() {
	if text := s.app.Wallet.Balance().Text(); text != "" {
		s.con.printf("Balance: %s\n", text)
	}
}

func (s *shell) credit(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	err := s.app.Wallet.Credit(ctx, args[0])
	_, msg := s.app.Wallet.CreditForm()
	s.report(msg, err)
	return nil
}

func (s *shell) transfer(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	pin, _ := s.con.readSecret("PIN: ")
	err := s.app.Wallet.Transfer(ctx, args[0], args[1], pin)
	_, msg := s.app.Wallet.TransferForm()
	s.report(msg, err)
	return nil
}

func (s *shell) pin(ctx context.Context, _ []string) error {
	s.con.printf("%s\n", s.app.Profile.PinButtonLabel())
	s.app.Profile.TogglePinPanel()
	pin1, _ := s.con.readSecret("New PIN: ")
	pin2, _ := s.con.readSecret("Confirm PIN: ")
	err := s.app.Wallet.SubmitPin(ctx, pin1, pin2)
	_, msg := s.app.Wallet.PinForm()
	s.report(msg, err)
	if s.app.Profile.PinPanelOpen() {
		s.app.Profile.TogglePinPanel()
	}
	return nil
}

func (s *shell) search(ctx context.Context, args []string) error {
	// outcome, including failure, is carried by the search view
	s.app.Requests.Search(ctx, strings.Join(args, " "))
	s.renderSearch()
	return nil
}

func (s *shell) renderSearch() {
	view, _ := s.app.Requests.SearchResults()
	if text := view.Text(); text != "" {
		s.con.printf("%s\n", text)
		return
	}
	for _, m := range view.Results {
		s.con.printf("  %s  %s\n", m.WalletID, m.Email)
	}
}

func (s *shell) request(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	err := s.app.Requests.CreateRequest(ctx, args[0], args[1], strings.Join(args[2:], " "))
	_, msg := s.app.Requests.RequestForm()
	s.report(msg, err)
	return nil
}

func (s *shell) requests(ctx context.Context, _ []string) error {
	if err := s.app.Requests.ListRequests(ctx); err != nil {
		s.report("", err)
	}
	s.renderRequests()
	return nil
}

func (s *shell) renderRequests() {
	s.con.printf("Incoming:\n")
	in := s.app.Requests.IncomingView()
	if text := in.Text(); text != "" {
		s.con.printf("  %s\n", text)
	}
	for i, r := range in.Items {
		s.con.printf("  %d. %s  %s  ₹%s\n", i+1, r.RequestID, r.Counterparty, r.Amount)
	}
	s.con.printf("Outgoing:\n")
	out := s.app.Requests.OutgoingView()
	if text := out.Text(); text != "" {
		s.con.printf("  %s\n", text)
	}
	for _, r := range out.Items {
		s.con.printf("  -  %s  %s  ₹%s\n", r.RequestID, r.Counterparty, r.Amount)
	}
}

func (s *shell) respond(action domain.RequestAction) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		if len(args) != 1 {
			return errUsage
		}
		incoming := s.app.Requests.Incoming()
		var target *service.ActionableRequest
		if n, err := strconv.Atoi(args[0]); err == nil && n >= 1 && n <= len(incoming) {
			target = &incoming[n-1]
		} else {
			for i := range incoming {
				if incoming[i].RequestID == args[0] {
					target = &incoming[i]
				}
			}
		}
		if target == nil {
			s.con.printf("No such incoming request; run 'requests' first.\n")
			return nil
		}

		respond := target.Reject
		if action == domain.ActionAccept {
			respond = target.Accept
		}
		if err := respond(ctx); err != nil {
			if !errors.Is(err, domain.ErrPromptCancelled) {
				// failures are alerted by the request manager
				return nil
			}
			s.con.printf("Cancelled.\n")
			return nil
		}
		s.renderRequests()
		return nil
	}
}

func (s *shell) history(ctx context.Context, _ []string) error {
	s.app.Wallet.LoadTransactions(ctx)
	s.renderHistory()
	return nil
}

func (s *shell) renderHistory() {
	view := s.app.Wallet.History()
	if text := view.Text(); text != "" {
		s.con.printf("%s\n", text)
		return
	}
	for _, t := range view.Items {
		s.con.printf("  %s\n", t.Describe())
	}
}

func (s *shell) state(_ context.Context, _ []string) error {
	b, err := json.MarshalIndent(s.app.State(), "", "  ")
	if err != nil {
		return err
	}
	s.con.printf("%s\n", b)
	return nil
}

func (s *shell) stats(_ context.Context, _ []string) error {
	snap := s.metrics.GetSnapshot()
	s.con.printf("operations: %.0f (failed %.0f)\n", snap.Operations, snap.Failures)
	s.con.printf("backend errors: %.0f\n", snap.BackendErrors)
	s.con.printf("stale responses dropped: %.0f\n", snap.StaleResponses)
	s.con.printf("search cache: %d entries, %.0f hits, %.0f misses\n", s.app.SearchCacheSize(), snap.CacheHits, snap.CacheMisses)
	return nil
}

func (s *shell) help(_ context.Context, _ []string) error {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		if name != "exit" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		c := s.commands[name]
		s.con.printf("  %-30s %s\n", c.usage, c.help)
	}
	return nil
}

func (s *shell) quit(_ context.Context, _ []string) error {
	s.done = true
	return nil
}
