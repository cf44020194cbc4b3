package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/boddenberg/wallet-session-go/internal/domain"
	"github.com/boddenberg/wallet-session-go/internal/handler"
	"github.com/boddenberg/wallet-session-go/internal/infra/observability"
	"github.com/boddenberg/wallet-session-go/internal/service"
)

type stubState struct {
	state service.State
}

func (s stubState) State() service.State { return s.state }

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(nil, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name  string
		state handler.StateSource
		want  int
	}{
		{"not started", nil, http.StatusServiceUnavailable},
		{"started", stubState{}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := handler.NewRouter(tt.state, observability.NewMetrics(), zap.NewNop())

			req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.IncrOperation("credit", "success")
	router := handler.NewRouter(nil, metrics, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "wallet_client_operations_total") {
		t.Error("expected wallet client metrics in the exposition")
	}
}

func TestState(t *testing.T) {
	state := stubState{state: service.State{
		Mode:    "AUTHENTICATED",
		Section: "BALANCE",
		Profile: &domain.Profile{FirstName: "Ann", WalletID: "WLT-ANN001"},
		Balance: "₹ 10.00",
	}}
	router := handler.NewRouter(state, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got service.State
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Mode != "AUTHENTICATED" || got.Profile == nil || got.Profile.WalletID != "WLT-ANN001" {
		t.Errorf("unexpected state %+v", got)
	}
}

func TestStats(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.IncrOperation("transfer", "failure")
	metrics.IncrOperation("transfer", "success")
	router := handler.NewRouter(nil, metrics, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	var got map[string]float64
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["operations"] != 2 || got["failures"] != 1 {
		t.Errorf("unexpected stats %v", got)
	}
}
