package fakebackend

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/boddenberg/wallet-session-go/internal/domain"
)

// parseMinor validates a positive integer amount in minor units.
func parseMinor(n json.Number) (domain.Money, error) {
	if n == "" {
		return 0, fieldError("amount", "This field is required.")
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return 0, fieldError("amount", "A valid integer is required.")
	}
	if v < 1 {
		return 0, fieldError("amount", "Ensure this value is greater than or equal to 1.")
	}
	return domain.Money(v), nil
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Amount         json.Number `json:"amount"`
		IdempotencyKey string      `json:"idempotency_key"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseMinor(body.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	u := currentUser(r)
	if body.IdempotencyKey != "" {
		won, err := s.idem.Claim(r.Context(), "credit:"+body.IdempotencyKey)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if !won {
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "Already processed",
				"balance": s.ledger.balance(u),
			})
			return
		}
	}

	balance := s.ledger.credit(u, amount)
	s.logger.Info("wallet credited", zap.String("wallet_id", u.walletID), zap.Int64("amount", int64(amount)))
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Wallet credited successfully",
		"balance": balance,
	})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var body struct {
		To             string      `json:"to"`
		Amount         json.Number `json:"amount"`
		Pin            string      `json:"pin"`
		IdempotencyKey string      `json:"idempotency_key"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := parseMinor(body.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	switch {
	case strings.TrimSpace(body.To) == "":
		s.fail(w, r, fieldError("to", "This field may not be blank."))
		return
	case len(body.Pin) < 4 || len(body.Pin) > 6:
		s.fail(w, r, fieldError("pin", "Ensure this field has between 4 and 6 characters."))
		return
	case body.IdempotencyKey == "":
		s.fail(w, r, fieldError("idempotency_key", "This field may not be blank."))
		return
	}

	u := currentUser(r)
	if err := s.ledger.verifyPin(u, body.Pin); err != nil {
		s.fail(w, r, err)
		return
	}

	key := "transfer:" + u.walletID + ":" + body.IdempotencyKey
	won, err := s.idem.Claim(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !won {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Transfer already processed"})
		return
	}

	ref, err := s.ledger.transfer(u, body.To, amount)
	if err != nil {
		if relErr := s.idem.Release(r.Context(), key); relErr != nil {
			s.logger.Warn("failed to release idempotency key", zap.Error(relErr))
		}
		s.fail(w, r, err)
		return
	}
	s.logger.Info("transfer completed", zap.String("from", u.walletID), zap.Int64("amount", int64(amount)))
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":      "Transfer successful",
		"reference_id": ref.String(),
	})
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	var body struct {
		To     string      `json:"to"`
		Amount json.Number `json:"amount"`
		Note   string      `json:"note"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(body.To) == "" || body.Amount == "" || body.Amount == "0" {
		s.fail(w, r, detail(http.StatusBadRequest, "to and amount required"))
		return
	}
	amount, err := parseMinor(body.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	id, err := s.ledger.createRequest(currentUser(r), body.To, amount, body.Note)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message":    "Money request created",
		"request_id": id,
	})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.pendingRequests(currentUser(r)))
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Action string `json:"action"`
		Pin    string `json:"pin"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	u := currentUser(r)
	id := chi.URLParam(r, "id")

	var err error
	switch body.Action {
	case "REJECT":
		if err = s.ledger.respond(u, id, false); err == nil {
			writeJSON(w, http.StatusOK, map[string]any{"message": "Request rejected"})
			return
		}
	case "ACCEPT":
		if err = s.ledger.verifyPin(u, body.Pin); err == nil {
			if err = s.ledger.respond(u, id, true); err == nil {
				writeJSON(w, http.StatusOK, map[string]any{"message": "Request accepted"})
				return
			}
		}
	default:
		err = detail(http.StatusBadRequest, "Invalid action")
	}
	s.fail(w, r, err)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.history(currentUser(r)))
}
