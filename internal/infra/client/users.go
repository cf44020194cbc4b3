package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/boddenberg/wallet-session-go/internal/domain"
)

type signupBody struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

type loginBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type setPinBody struct {
	Pin string `json:"pin"`
}

type accountResponse struct {
	FirstName string       `json:"first_name"`
	Email     string       `json:"email"`
	WalletID  string       `json:"walletId"`
	Balance   domain.Money `json:"balance"`
	HasPin    bool         `json:"has_pin"`
}

type userMatchResponse struct {
	Email    string `json:"email"`
	WalletID string `json:"wallet_id"`
}

// searchResponse accepts either a bare array or an object with a results array.
type searchResponse []userMatchResponse

func (s *searchResponse) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Results []userMatchResponse `json:"results"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		*s = wrapped.Results
		return nil
	}
	var list []userMatchResponse
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*s = list
	return nil
}

// Signup creates an account. It does not open a session.
func (c *Client) Signup(ctx context.Context, req *domain.SignupRequest) error {
	return c.post(ctx, "signup", "/api/users/signup/", signupBody{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Password:  req.Password,
	}, nil)
}

// Login opens a backend session; the session cookie lands in the client's jar.
func (c *Client) Login(ctx context.Context, email, password string) error {
	return c.post(ctx, "login", "/api/users/login/", loginBody{Email: email, Password: password}, nil)
}

// Logout closes the backend session.
func (c *Client) Logout(ctx context.Context) error {
	return c.post(ctx, "logout", "/api/users/logout/", nil, nil)
}

// GetAccount fetches the profile and balance in one call.
func (c *Client) GetAccount(ctx context.Context) (*domain.AccountSnapshot, error) {
	var resp accountResponse
	if err := c.get(ctx, "get_account", "/api/users/balance/", &resp); err != nil {
		return nil, err
	}
	return &domain.AccountSnapshot{
		Profile: domain.Profile{
			FirstName: resp.FirstName,
			Email:     resp.Email,
			WalletID:  resp.WalletID,
			HasPin:    resp.HasPin,
		},
		Balance: resp.Balance,
	}, nil
}

// SetPin sets or replaces the transaction PIN.
func (c *Client) SetPin(ctx context.Context, pin string) error {
	return c.post(ctx, "set_pin", "/api/users/set-pin/", setPinBody{Pin: pin}, nil)
}

// SearchUsers finds other wallet holders by partial email or wallet id.
func (c *Client) SearchUsers(ctx context.Context, query string) ([]domain.UserMatch, error) {
	var resp searchResponse
	path := fmt.Sprintf("/api/users/search-users/?q=%s", url.QueryEscape(query))
	if err := c.get(ctx, "search_users", path, &resp); err != nil {
		return nil, err
	}

	matches := make([]domain.UserMatch, 0, len(resp))
	for _, m := range resp {
		matches = append(matches, domain.UserMatch{Email: m.Email, WalletID: m.WalletID})
	}
	return matches, nil
}
