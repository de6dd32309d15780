package http

import (
	"net/http"
	"strings"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/service"
)

type postTransactionRequest struct {
	Type        domain.TransactionType `json:"type"`
	Amount      int64                  `json:"amount"`
	MemberID    *int32                 `json:"member_id"`
	Description string                 `json:"description"`
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req postTransactionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.Ledger.PostTransaction(r.Context(), actorOf(r), service.PostRequest{
		GangID:      gangID,
		Type:        req.Type,
		Amount:      req.Amount,
		MemberID:    req.MemberID,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

type transactionPage struct {
	Transactions []domain.Transaction `json:"transactions"`
	Total        int32                `json:"total"`
	Page         int32                `json:"page"`
	PageSize     int32                `json:"page_size"`
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "page_size", 20)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var statuses []domain.TransactionStatus
	for _, s := range r.URL.Query()["status"] {
		statuses = append(statuses, domain.TransactionStatus(strings.ToUpper(s)))
	}

	txs, total, err := h.svc.Ledger.ListTransactions(r.Context(), actorOf(r), gangID, statuses, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transactionPage{Transactions: txs, Total: total, Page: page, PageSize: pageSize})
}

func (h *Handler) submitTransaction(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req postTransactionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tx, err := h.svc.Approvals.Submit(r.Context(), actorOf(r), gangID, req.Type, req.Amount, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, tx)
}

func (h *Handler) resolveTransaction(w http.ResponseWriter, r *http.Request) {
	txID, err := pathID(r, "transactionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Decision domain.Decision `json:"decision"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.Approvals.Resolve(r.Context(), actorOf(r), txID, domain.Decision(strings.ToUpper(string(req.Decision))))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type driftResponse struct {
	*domain.Drift
	Consistent bool `json:"consistent"`
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	drift, err := h.svc.Ledger.Reconcile(r.Context(), actorOf(r), gangID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, driftResponse{Drift: drift, Consistent: drift.Consistent()})
}
