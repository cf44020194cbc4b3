package domain

import "fmt"

// Profile is the authenticated user's profile snapshot.
type Profile struct {
	FirstName string `json:"firstName"`
	Email     string `json:"email"`
	WalletID  string `json:"walletId"`
	HasPin    bool   `json:"hasPin"`
}

// AccountSnapshot is what the profile/balance endpoint returns: the profile
// plus the current balance.
type AccountSnapshot struct {
	Profile
	Balance Money `json:"balance"`
}

// TransactionType is the direction of a ledger entry from the wallet owner's view.
type TransactionType string

const (
	TransactionCredit TransactionType = "CREDIT"
	TransactionDebit  TransactionType = "DEBIT"
)

// Transaction is a read-only history entry.
type Transaction struct {
	Timestamp         string          `json:"timestamp"`
	Type              TransactionType `json:"type"`
	Amount            Money           `json:"amount"`
	CounterpartyEmail string          `json:"counterpartyEmail"`
	Reference         string          `json:"reference"`
}

// Describe renders the history line shown for the transaction.
func (t Transaction) Describe() string {
	direction := "Sent to"
	if t.Type == TransactionCredit {
		direction = "Received from"
	}
	return fmt.Sprintf("%s | %s | ₹%s | %s: %s | Txn ID: %s",
		t.Timestamp, t.Type, t.Amount, direction, t.CounterpartyEmail, t.Reference)
}

// RequestDirection tells whether a payment request was received or sent.
type RequestDirection string

const (
	DirectionIncoming RequestDirection = "INCOMING"
	DirectionOutgoing RequestDirection = "OUTGOING"
)

// PaymentRequest is a pending ask for money between two wallets.
type PaymentRequest struct {
	RequestID    string           `json:"requestId"`
	Counterparty string           `json:"counterparty"`
	Amount       Money            `json:"amount"`
	Direction    RequestDirection `json:"direction"`
}

// RequestLists is one snapshot of both pending request directions.
type RequestLists struct {
	Incoming []PaymentRequest
	Outgoing []PaymentRequest
}

// RequestAction is the answer to an incoming payment request.
type RequestAction string

const (
	ActionAccept RequestAction = "ACCEPT"
	ActionReject RequestAction = "REJECT"
)

// UserMatch is one user search result.
type UserMatch struct {
	Email    string `json:"email"`
	WalletID string `json:"walletId"`
}

// OperationResult is the success payload of a money-moving call.
type OperationResult struct {
	Message string
}

// SignupRequest is sent to create an account.
type SignupRequest struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// CreditRequest credits the caller's own wallet.
type CreditRequest struct {
	Amount         Money
	IdempotencyKey string
}

// TransferRequest moves money to another wallet, addressed by email or wallet id.
type TransferRequest struct {
	To             string
	Amount         Money
	Pin            string
	IdempotencyKey string
}

// MoneyRequest asks another wallet holder for money.
type MoneyRequest struct {
	To     string
	Amount Money
	Note   string
}

// RespondRequest answers an incoming payment request. Pin is only sent on accept.
type RespondRequest struct {
	Action RequestAction
	Pin    string
}

// CreditForm is the credit input field.
type CreditForm struct {
	Amount string
}

// TransferForm holds the transfer input fields.
type TransferForm struct {
	To     string
	Amount string
	Pin    string
}

// PinForm holds the two PIN entry fields.
type PinForm struct {
	Pin1 string
	Pin2 string
}

// MoneyRequestForm holds the payment request input fields.
type MoneyRequestForm struct {
	To     string
	Amount string
	Note   string
}
