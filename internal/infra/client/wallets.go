package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/boddenberg/wallet-session-go/internal/domain"
)

// Amounts sent to the backend are integer minor units.

type creditBody struct {
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type transferBody struct {
	To             string `json:"to"`
	Amount         int64  `json:"amount"`
	Pin            string `json:"pin"`
	IdempotencyKey string `json:"idempotency_key"`
}

type moneyRequestBody struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
	Note   string `json:"note,omitempty"`
}

type respondBody struct {
	Action string `json:"action"`
	Pin    string `json:"pin,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type transactionResponse struct {
	Timestamp         string       `json:"timestamp"`
	Type              string       `json:"type"`
	Amount            domain.Money `json:"amount"`
	CounterpartyEmail string       `json:"counterparty_email"`
	Reference         string       `json:"reference"`
}

// requestID accepts ids rendered either as JSON strings or numbers.
type requestID string

func (r *requestID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = requestID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode request id: %w", err)
	}
	*r = requestID(n.String())
	return nil
}

type requestListsResponse struct {
	Incoming []struct {
		RequestID requestID    `json:"request_id"`
		From      string       `json:"from"`
		Amount    domain.Money `json:"amount"`
	} `json:"incoming"`
	Outgoing []struct {
		RequestID requestID    `json:"request_id"`
		To        string       `json:"to"`
		Amount    domain.Money `json:"amount"`
	} `json:"outgoing"`
}

// Credit adds funds to the caller's wallet.
func (c *Client) Credit(ctx context.Context, req *domain.CreditRequest) (*domain.OperationResult, error) {
	var resp messageResponse
	err := c.post(ctx, "credit", "/api/wallets/credit/", creditBody{
		Amount:         int64(req.Amount),
		IdempotencyKey: req.IdempotencyKey,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &domain.OperationResult{Message: resp.Message}, nil
}

// Transfer moves funds to another wallet.
func (c *Client) Transfer(ctx context.Context, req *domain.TransferRequest) (*domain.OperationResult, error) {
	var resp messageResponse
	err := c.post(ctx, "transfer", "/api/wallets/transfer/", transferBody{
		To:             req.To,
		Amount:         int64(req.Amount),
		Pin:            req.Pin,
		IdempotencyKey: req.IdempotencyKey,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &domain.OperationResult{Message: resp.Message}, nil
}

// ListTransactions returns the caller's history, newest first.
func (c *Client) ListTransactions(ctx context.Context) ([]domain.Transaction, error) {
	var resp []transactionResponse
	if err := c.get(ctx, "list_transactions", "/api/wallets/transactions/", &resp); err != nil {
		return nil, err
	}

	txns := make([]domain.Transaction, 0, len(resp))
	for _, t := range resp {
		txns = append(txns, domain.Transaction{
			Timestamp:         t.Timestamp,
			Type:              domain.TransactionType(t.Type),
			Amount:            t.Amount,
			CounterpartyEmail: t.CounterpartyEmail,
			Reference:         t.Reference,
		})
	}
	return txns, nil
}

// CreateRequest asks another wallet holder for money.
func (c *Client) CreateRequest(ctx context.Context, req *domain.MoneyRequest) (*domain.OperationResult, error) {
	var resp messageResponse
	err := c.post(ctx, "create_request", "/api/wallets/request/", moneyRequestBody{
		To:     req.To,
		Amount: int64(req.Amount),
		Note:   req.Note,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &domain.OperationResult{Message: resp.Message}, nil
}

// ListRequests returns the pending requests in both directions.
func (c *Client) ListRequests(ctx context.Context) (*domain.RequestLists, error) {
	var resp requestListsResponse
	if err := c.get(ctx, "list_requests", "/api/wallets/requests/", &resp); err != nil {
		return nil, err
	}

	lists := &domain.RequestLists{
		Incoming: make([]domain.PaymentRequest, 0, len(resp.Incoming)),
		Outgoing: make([]domain.PaymentRequest, 0, len(resp.Outgoing)),
	}
	for _, r := range resp.Incoming {
		lists.Incoming = append(lists.Incoming, domain.PaymentRequest{
			RequestID:    string(r.RequestID),
			Counterparty: r.From,
			Amount:       r.Amount,
			Direction:    domain.DirectionIncoming,
		})
	}
	for _, r := range resp.Outgoing {
		lists.Outgoing = append(lists.Outgoing, domain.PaymentRequest{
			RequestID:    string(r.RequestID),
			Counterparty: r.To,
			Amount:       r.Amount,
			Direction:    domain.DirectionOutgoing,
		})
	}
	return lists, nil
}

// RespondRequest accepts or rejects an incoming request.
func (c *Client) RespondRequest(ctx context.Context, id string, req *domain.RespondRequest) error {
	path := "/api/wallets/request/" + url.PathEscape(id) + "/respond/"
	return c.post(ctx, "respond_request", path, respondBody{
		Action: string(req.Action),
		Pin:    req.Pin,
	}, nil)
}
