package fakebackend

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/boddenberg/wallet-session-go/internal/domain"
)

const (
	maxPinAttempts = 3
	pinLockout     = 10 * time.Minute
	walletIDChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

type user struct {
	id        string
	firstName string
	lastName  string
	email     string
	password  []byte
	walletID  string
}

type wallet struct {
	id      string
	owner   string
	balance domain.Money
}

type transactionPin struct {
	hash        []byte
	failed      int
	lockedUntil time.Time
}

type transaction struct {
	id           uuid.UUID
	walletID     string
	kind         domain.TransactionType
	amount       domain.Money
	reference    uuid.UUID
	counterparty string // user id; empty for credits
	at           time.Time
}

type requestStatus string

const (
	statusPending  requestStatus = "PENDING"
	statusAccepted requestStatus = "ACCEPTED"
	statusRejected requestStatus = "REJECTED"
)

type moneyRequest struct {
	id        string
	requester string // wallet id
	payer     string // wallet id
	amount    domain.Money
	note      string
	status    requestStatus
	seq       int
}

// ledger is the backend's whole state behind one mutex.
type ledger struct {
	mu sync.Mutex

	usersByID    map[string]*user
	usersByEmail map[string]*user
	wallets      map[string]*wallet
	pins         map[string]*transactionPin // keyed by user id
	txns         []*transaction
	requests     map[string]*moneyRequest
	revoked      map[string]struct{} // session token ids
	requestSeq   int

	bcryptCost int
	now        func() time.Time
}

func newLedger(bcryptCost int, now func() time.Time) *ledger {
	return &ledger{
		usersByID:    make(map[string]*user),
		usersByEmail: make(map[string]*user),
		wallets:      make(map[string]*wallet),
		pins:         make(map[string]*transactionPin),
		requests:     make(map[string]*moneyRequest),
		revoked:      make(map[string]struct{}),
		bcryptCost:   bcryptCost,
		now:          now,
	}
}

func (l *ledger) createUser(firstName, lastName, email, password string) (*user, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := strings.ToLower(email)
	if _, exists := l.usersByEmail[key]; exists {
		return nil, fieldError("email", "user with this email already exists.")
	}

	u := &user{
		id:        uuid.NewString(),
		firstName: firstName,
		lastName:  lastName,
		email:     email,
		password:  hash,
		walletID:  l.newWalletIDLocked(),
	}
	l.usersByID[u.id] = u
	l.usersByEmail[key] = u
	l.wallets[u.walletID] = &wallet{id: u.walletID, owner: u.id}
	return u, nil
}

func (l *ledger) newWalletIDLocked() string {
	for {
		b := make([]byte, 6)
		for i := range b {
			b[i] = walletIDChars[rand.IntN(len(walletIDChars))]
		}
		id := "WLT-" + string(b)
		if _, taken := l.wallets[id]; !taken {
			return id
		}
	}
}

func (l *ledger) authenticate(email, password string) (*user, bool) {
	l.mu.Lock()
	u := l.usersByEmail[strings.ToLower(email)]
	l.mu.Unlock()
	if u == nil {
		return nil, false
	}
	if bcrypt.CompareHashAndPassword(u.password, []byte(password)) != nil {
		return nil, false
	}
	return u, true
}

func (l *ledger) user(id string) (*user, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.usersByID[id]
	return u, ok
}

func (l *ledger) revoke(tokenID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoked[tokenID] = struct{}{}
}

func (l *ledger) isRevoked(tokenID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.revoked[tokenID]
	return ok
}

type accountView struct {
	WalletID  string       `json:"walletId"`
	Balance   domain.Money `json:"balance"`
	FirstName string       `json:"first_name"`
	Email     string       `json:"email"`
	HasPin    bool         `json:"has_pin"`
}

func (l *ledger) account(u *user) accountView {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, hasPin := l.pins[u.id]
	return accountView{
		WalletID:  u.walletID,
		Balance:   l.wallets[u.walletID].balance,
		FirstName: u.firstName,
		Email:     u.email,
		HasPin:    hasPin,
	}
}

func (l *ledger) setPin(u *user, pin string) error {
	if len(pin) < 4 {
		return fieldError("pin", "Ensure this field has at least 4 characters.")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fieldError("pin", "PIN must contain only digits")
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), l.bcryptCost)
	if err != nil {
		return fmt.Errorf("hashing pin: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pins[u.id] = &transactionPin{hash: hash}
	return nil
}

// verifyPin checks pin against the stored hash and maintains the lockout.
func (l *ledger) verifyPin(u *user, pin string) error {
	l.mu.Lock()
	p := l.pins[u.id]
	if p == nil {
		l.mu.Unlock()
		return detail(http.StatusBadRequest, "Transaction PIN not set")
	}
	if l.now().Before(p.lockedUntil) {
		l.mu.Unlock()
		return detail(http.StatusForbidden, "Transaction PIN locked. Try again after 10 minutes.")
	}
	hash := p.hash
	l.mu.Unlock()

	match := bcrypt.CompareHashAndPassword(hash, []byte(pin)) == nil

	l.mu.Lock()
	defer l.mu.Unlock()
	if match {
		p.failed = 0
		p.lockedUntil = time.Time{}
		return nil
	}
	p.failed++
	if p.failed >= maxPinAttempts {
		p.lockedUntil = l.now().Add(pinLockout)
	}
	return &apiError{status: http.StatusBadRequest, body: map[string]any{
		"detail":             "Invalid PIN",
		"remaining_attempts": max(0, maxPinAttempts-p.failed),
	}}
}

// resolveLocked finds a wallet by owner email (anything containing "@")
// or by wallet id.
func (l *ledger) resolveLocked(to string) *wallet {
	to = strings.TrimSpace(to)
	if strings.Contains(to, "@") {
		u := l.usersByEmail[strings.ToLower(to)]
		if u == nil {
			return nil
		}
		return l.wallets[u.walletID]
	}
	return l.wallets[strings.ToUpper(to)]
}

func (l *ledger) recordLocked(walletID string, kind domain.TransactionType, amount domain.Money, ref uuid.UUID, counterparty string) {
	l.txns = append(l.txns, &transaction{
		id:           uuid.New(),
		walletID:     walletID,
		kind:         kind,
		amount:       amount,
		reference:    ref,
		counterparty: counterparty,
		at:           l.now(),
	})
}

func (l *ledger) credit(u *user, amount domain.Money) domain.Money {
	l.mu.Lock()
	defer l.mu.Unlock()
	w := l.wallets[u.walletID]
	w.balance += amount
	l.recordLocked(w.id, domain.TransactionCredit, amount, uuid.New(), "")
	return w.balance
}

func (l *ledger) balance(u *user) domain.Money {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wallets[u.walletID].balance
}

// transfer moves amount from u's wallet to the wallet named by to and
// returns the shared reference of the two legs.
func (l *ledger) transfer(u *user, to string, amount domain.Money) (uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferLocked(l.wallets[u.walletID], l.resolveLocked(to), amount)
}

func (l *ledger) transferLocked(from, to *wallet, amount domain.Money) (uuid.UUID, error) {
	if to == nil {
		return uuid.Nil, detail(http.StatusNotFound, "Recipient not found")
	}
	if to.id == from.id {
		return uuid.Nil, detail(http.StatusBadRequest, "Cannot transfer money to your own wallet")
	}
	if from.balance < amount {
		return uuid.Nil, detail(http.StatusBadRequest, "Insufficient balance")
	}
	ref := uuid.New()
	from.balance -= amount
	to.balance += amount
	l.recordLocked(from.id, domain.TransactionDebit, amount, ref, to.owner)
	l.recordLocked(to.id, domain.TransactionCredit, amount, ref, from.owner)
	return ref, nil
}

type userMatch struct {
	Email    string `json:"email"`
	WalletID string `json:"wallet_id"`
}

func (l *ledger) search(u *user, q string) []userMatch {
	out := []userMatch{}
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return out
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	seen := make(map[string]struct{})
	for _, other := range l.usersByID {
		if other.id == u.id {
			continue
		}
		if !strings.Contains(strings.ToLower(other.email), q) && !strings.Contains(strings.ToLower(other.walletID), q) {
			continue
		}
		if _, dup := seen[other.walletID]; dup {
			continue
		}
		seen[other.walletID] = struct{}{}
		out = append(out, userMatch{Email: other.email, WalletID: other.walletID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out
}

func (l *ledger) createRequest(u *user, to string, amount domain.Money, note string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	payer := l.resolveLocked(to)
	if payer == nil {
		return "", detail(http.StatusNotFound, "Recipient not found")
	}
	if payer.id == u.walletID {
		return "", detail(http.StatusBadRequest, "Cannot request money from yourself")
	}
	r := &moneyRequest{
		id:        uuid.NewString(),
		requester: u.walletID,
		payer:     payer.id,
		amount:    amount,
		note:      note,
		status:    statusPending,
		seq:       l.requestSeq,
	}
	l.requestSeq++
	l.requests[r.id] = r
	return r.id, nil
}

type incomingView struct {
	RequestID string  `json:"request_id"`
	From      string  `json:"from"`
	Amount    float64 `json:"amount"`
}

type outgoingView struct {
	RequestID string  `json:"request_id"`
	To        string  `json:"to"`
	Amount    float64 `json:"amount"`
}

type requestListsView struct {
	Incoming []incomingView `json:"incoming"`
	Outgoing []outgoingView `json:"outgoing"`
}

// pendingRequests lists u's pending requests in both directions, oldest first.
func (l *ledger) pendingRequests(u *user) requestListsView {
	l.mu.Lock()
	defer l.mu.Unlock()

	pending := make([]*moneyRequest, 0, len(l.requests))
	for _, r := range l.requests {
		if r.status == statusPending {
			pending = append(pending, r)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })

	view := requestListsView{Incoming: []incomingView{}, Outgoing: []outgoingView{}}
	for _, r := range pending {
		amount := r.amount.Major().InexactFloat64()
		switch u.walletID {
		case r.payer:
			view.Incoming = append(view.Incoming, incomingView{RequestID: r.id, From: r.requester, Amount: amount})
		case r.requester:
			view.Outgoing = append(view.Outgoing, outgoingView{RequestID: r.id, To: r.payer, Amount: amount})
		}
	}
	return view
}

// respond settles the pending request id addressed to u. Accepting pays
// the requester from u's wallet.
func (l *ledger) respond(u *user, id string, accept bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.requests[id]
	if r == nil || r.payer != u.walletID || r.status != statusPending {
		return detail(http.StatusNotFound, "Invalid request")
	}
	if !accept {
		r.status = statusRejected
		return nil
	}
	if _, err := l.transferLocked(l.wallets[r.payer], l.wallets[r.requester], r.amount); err != nil {
		return err
	}
	r.status = statusAccepted
	return nil
}

type transactionView struct {
	Reference         string       `json:"reference"`
	Type              string       `json:"type"`
	Amount            domain.Money `json:"amount"`
	WalletID          string       `json:"wallet_id"`
	Timestamp         string       `json:"timestamp"`
	CounterpartyEmail *string      `json:"counterparty_email"`
}

func (l *ledger) history(u *user) []transactionView {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := []transactionView{}
	for i := len(l.txns) - 1; i >= 0; i-- {
		t := l.txns[i]
		if t.walletID != u.walletID {
			continue
		}
		v := transactionView{
			Reference: "REF-" + strings.ToUpper(strings.SplitN(t.reference.String(), "-", 2)[0]),
			Type:      string(t.kind),
			Amount:    t.amount,
			WalletID:  t.walletID,
			Timestamp: t.at.Format(time.DateTime),
		}
		if cp := l.usersByID[t.counterparty]; cp != nil {
			email := cp.email
			v.CounterpartyEmail = &email
		}
		out = append(out, v)
	}
	return out
}
