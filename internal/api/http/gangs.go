package http

import (
	"net/http"

	"gangkeeper-backend/internal/domain"
)

func actorOf(r *http.Request) domain.Actor {
	actor, _ := ActorFromContext(r.Context())
	return actor
}

type createGangRequest struct {
	Name          string `json:"name"`
	OwnerName     string `json:"owner_name"`
	PenaltyAmount int64  `json:"penalty_amount"`
	ChatID        int64  `json:"chat_id"`
	ContactEmail  string `json:"contact_email"`
}

type createGangResponse struct {
	Gang  *domain.Gang   `json:"gang"`
	Owner *domain.Member `json:"owner"`
}

func (h *Handler) createGang(w http.ResponseWriter, r *http.Request) {
	var req createGangRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	gang := &domain.Gang{
		Name:          req.Name,
		PenaltyAmount: req.PenaltyAmount,
		ChatID:        req.ChatID,
		ContactEmail:  req.ContactEmail,
	}
	owner, err := h.svc.Membership.CreateGang(r.Context(), actorOf(r), gang, req.OwnerName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createGangResponse{Gang: gang, Owner: owner})
}

func (h *Handler) getGang(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	gang, err := h.svc.Membership.GetGang(r.Context(), actorOf(r), gangID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, gang)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	members, err := h.svc.Membership.ListMembers(r.Context(), actorOf(r), gangID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (h *Handler) registerSelf(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	member, err := h.svc.Membership.Register(r.Context(), actorOf(r), gangID, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, member)
}

type approveRequest struct {
	Approve bool `json:"approve"`
}

func (h *Handler) reviewMember(w http.ResponseWriter, r *http.Request) {
	memberID, err := pathID(r, "memberID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req approveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	member, err := h.svc.Membership.Review(r.Context(), actorOf(r), memberID, req.Approve)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, member)
}

func (h *Handler) syncRoles(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := h.svc.Roles.SyncGang(r.Context(), actorOf(r), gangID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) listAuditLog(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := h.svc.Audit.List(r.Context(), actorOf(r), gangID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type permissionsResponse struct {
	GangID int32                  `json:"gang_id"`
	Actor  string                 `json:"actor"`
	Level  domain.PermissionLevel `json:"level"`
}

func (h *Handler) myPermissions(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor := actorOf(r)
	level, err := h.svc.Permissions.Resolve(r.Context(), actor, gangID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, permissionsResponse{GangID: gangID, Actor: actor.String(), Level: level})
}
