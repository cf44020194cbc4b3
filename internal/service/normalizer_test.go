package service_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/boddenberg/wallet-session-go/internal/domain"
	"github.com/boddenberg/wallet-session-go/internal/service"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"detail wins", rejection(400, domain.ErrorPayload{Detail: "Invalid PIN", Error: "e", Message: "m"}), "Invalid PIN"},
		{"error before message", rejection(400, domain.ErrorPayload{Error: "bad input", Message: "m"}), "bad input"},
		{"message last", rejection(400, domain.ErrorPayload{Message: "try later"}), "try later"},
		{"empty payload", rejection(400, domain.ErrorPayload{}), "Something went wrong"},
		{"wrapped rejection", fmt.Errorf("transfer: %w", rejection(404, domain.ErrorPayload{Detail: "Recipient not found"})), "Recipient not found"},
		{"validation", &domain.ErrValidation{Field: "pin", Message: "PINs must match"}, "PINs must match"},
		{"network", &domain.ErrNetwork{Operation: "credit", Err: errors.New("refused")}, "Something went wrong"},
		{"circuit open", &domain.ErrCircuitOpen{Service: "wallet-backend"}, "Something went wrong"},
		{"nil", nil, "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := service.Normalize(tt.err, "Something went wrong"); got != tt.want {
				t.Errorf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}
