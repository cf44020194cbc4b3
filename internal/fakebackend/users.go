package fakebackend

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Password  string `json:"password"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	missing := map[string]any{}
	for field, value := range map[string]string{
		"email": body.Email, "first_name": body.FirstName,
		"last_name": body.LastName, "password": body.Password,
	} {
		if strings.TrimSpace(value) == "" {
			missing[field] = []string{"This field may not be blank."}
		}
	}
	if len(missing) == 0 && !strings.Contains(body.Email, "@") {
		missing["email"] = []string{"Enter a valid email address."}
	}
	if len(missing) > 0 {
		writeAPIError(w, &apiError{status: http.StatusBadRequest, body: missing})
		return
	}

	u, err := s.ledger.createUser(body.FirstName, body.LastName, strings.TrimSpace(body.Email), body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("user signed up", zap.String("wallet_id", u.walletID))
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User created successfully", "email": u.email})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	u, ok := s.ledger.authenticate(strings.TrimSpace(body.Email), body.Password)
	if !ok {
		writeAPIError(w, fieldError("non_field_errors", "Invalid email or password"))
		return
	}
	if err := s.issueSession(w, u); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Login successful"})
}

// handleLogout always succeeds; a live session is revoked on the way out.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if _, claims, ok := s.sessionFrom(r); ok {
		s.ledger.revoke(claims.ID)
	}
	clearSession(w)
	writeJSON(w, http.StatusOK, map[string]any{"message": "Logout successful"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.account(currentUser(r)))
}

func (s *Server) handleSetPin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Pin string `json:"pin"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ledger.setPin(currentUser(r), body.Pin); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Transaction PIN set successfully"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.search(currentUser(r), r.URL.Query().Get("q")))
}
