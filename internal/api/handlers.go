package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"crossfund/internal/convert"
	"crossfund/internal/ledger"
	"crossfund/internal/model"
)

const maxBodyBytes = 64 << 10

type contributionRequest struct {
	ProjectID   string  `json:"projectId"`
	Contributor string  `json:"contributor"`
	Chain       string  `json:"chain"`
	Currency    string  `json:"currency"`
	Amount      float64 `json:"amount"`
	TxHash      string  `json:"txHash"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"projects":  len(s.ledger.Projects()),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleRecordContribution(w http.ResponseWriter, r *http.Request) {
	var req contributionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chain, err := model.ParseChain(req.Chain)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	currency, err := model.ParseCurrency(req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Load the project first so a later bootstrap cannot overwrite this record.
	s.ensureLoaded(r.Context(), req.ProjectID)

	rec, err := s.ledger.RecordContribution(r.Context(), ledger.Input{
		ProjectID:   req.ProjectID,
		Contributor: req.Contributor,
		Chain:       chain,
		Currency:    currency,
		Amount:      req.Amount,
		TxHash:      req.TxHash,
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("record contribution failed", zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"projects": s.ledger.Projects()})
}

func (s *Server) handleProjectFunding(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	s.ensureLoaded(r.Context(), projectID)
	writeJSON(w, http.StatusOK, s.ledger.ProjectFunding(projectID))
}

func (s *Server) handleProjectContributions(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	s.ensureLoaded(r.Context(), projectID)
	writeJSON(w, http.StatusOK, map[string]any{
		"projectId":     projectID,
		"contributions": s.ledger.Contributions(projectID),
	})
}

func (s *Server) handleUserContributions(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	out := make([]model.Contribution, 0)
	for rec := range s.ledger.UserContributions(address) {
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":       address,
		"contributions": out,
	})
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.prices.GetPrices(r.Context()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrDuplicateContribution):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidContribution),
		errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrUnsupportedChain),
		errors.Is(err, model.ErrUnsupportedCurrency):
		return http.StatusBadRequest
	case errors.Is(err, convert.ErrDivisionByZero):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
