package handler

import (
	"net/http"
	"sort"

	"github.com/efreitasn/toyexchange/internal/domain"
	"github.com/efreitasn/toyexchange/internal/store"
)

// BalanceHandler serves read-through balance queries against the ledger
// store.
type BalanceHandler struct {
	store store.LedgerStore
}

// NewBalanceHandler creates a new BalanceHandler.
func NewBalanceHandler(st store.LedgerStore) *BalanceHandler {
	return &BalanceHandler{store: st}
}

// positionResponse is one symbol position in a balance response.
type positionResponse struct {
	Symbol string `json:"symbol"`
	Qty    int64  `json:"qty"`
}

// balanceResponse is the JSON response for a single user's balances.
// Unknown users return a zero balance with no positions.
type balanceResponse struct {
	UserID    string             `json:"user_id"`
	Cash      float64            `json:"cash"`
	Positions []positionResponse `json:"positions"`
}

// allBalancesResponse is the JSON response for GET /balances/all.
type allBalancesResponse struct {
	Users []balanceResponse `json:"users"`
}

// Get handles GET /balances?user_id=…
func (h *BalanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	acct, err := h.store.Account(r.Context(), userID)
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}
	WriteJSON(w, http.StatusOK, buildBalanceResponse(acct))
}

// GetAll handles GET /balances/all.
func (h *BalanceHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.store.Accounts(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
		return
	}

	resp := allBalancesResponse{Users: make([]balanceResponse, 0, len(accounts))}
	for _, acct := range accounts {
		resp.Users = append(resp.Users, buildBalanceResponse(acct))
	}
	WriteJSON(w, http.StatusOK, resp)
}

// buildBalanceResponse converts an account to its response form with
// positions sorted by symbol.
func buildBalanceResponse(acct domain.Account) balanceResponse {
	positions := make([]positionResponse, 0, len(acct.Positions))
	for sym, qty := range acct.Positions {
		positions = append(positions, positionResponse{Symbol: sym, Qty: qty})
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	return balanceResponse{
		UserID:    acct.UserID,
		Cash:      acct.Cash.InexactFloat64(),
		Positions: positions,
	}
}
