package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type startTransferRequest struct {
	// Deadline defaults to now plus the configured window.
	Deadline *time.Time `json:"deadline"`
}

func (h *Handler) startTransfer(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req startTransferRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	deadline := time.Now().Add(h.transferWindow)
	if req.Deadline != nil {
		deadline = *req.Deadline
	}
	gang, err := h.svc.Transfers.Start(r.Context(), actorOf(r), gangID, deadline)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gang)
}

func (h *Handler) confirmTransfer(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	member, err := h.svc.Transfers.Confirm(r.Context(), actorOf(r), gangID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *Handler) leaveTransfer(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	member, err := h.svc.Transfers.Leave(r.Context(), actorOf(r), gangID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *Handler) completeTransfer(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := h.svc.Transfers.Complete(r.Context(), actorOf(r), gangID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) cancelTransfer(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Transfers.Cancel(r.Context(), actorOf(r), gangID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) runJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["job"]
	if err := h.jobs.Run(r.Context(), name); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job": name, "status": "done"})
}
