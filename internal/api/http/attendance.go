package http

import (
	"net/http"
	"strings"
	"time"

	"gangkeeper-backend/internal/domain"
)

type createSessionRequest struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := h.svc.Attendance.Create(r.Context(), actorOf(r), gangID, req.Name, req.StartTime, req.EndTime)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	sessions, err := h.svc.Attendance.ListSessions(r.Context(), actorOf(r), gangID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	session, err := h.svc.Attendance.Start(r.Context(), actorOf(r), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type checkInResponse struct {
	Record   *domain.AttendanceRecord `json:"record"`
	Inserted bool                     `json:"inserted"`
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	record, inserted, err := h.svc.Attendance.CheckIn(r.Context(), actorOf(r), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if inserted {
		status = http.StatusCreated
	}
	writeJSON(w, status, checkInResponse{Record: record, Inserted: inserted})
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := h.svc.Attendance.Close(r.Context(), actorOf(r), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) cancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.svc.Attendance.Cancel(r.Context(), actorOf(r), sessionID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathID(r, "sessionID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	records, err := h.svc.Attendance.ListRecords(r.Context(), actorOf(r), sessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type requestLeaveRequest struct {
	Type      domain.LeaveType `json:"type"`
	StartDate time.Time        `json:"start_date"`
	EndDate   time.Time        `json:"end_date"`
	Reason    string           `json:"reason"`
}

func (h *Handler) requestLeave(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req requestLeaveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.EndDate.IsZero() {
		req.EndDate = req.StartDate
	}
	leave, err := h.svc.Leaves.Request(r.Context(), actorOf(r), gangID,
		domain.LeaveType(strings.ToUpper(string(req.Type))), req.StartDate, req.EndDate, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, leave)
}

func (h *Handler) listLeaves(w http.ResponseWriter, r *http.Request) {
	gangID, err := pathID(r, "gangID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var statuses []domain.LeaveStatus
	for _, s := range r.URL.Query()["status"] {
		statuses = append(statuses, domain.LeaveStatus(strings.ToUpper(s)))
	}
	leaves, err := h.svc.Leaves.List(r.Context(), actorOf(r), gangID, statuses)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leaves)
}

func (h *Handler) resolveLeave(w http.ResponseWriter, r *http.Request) {
	leaveID, err := pathID(r, "leaveID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req approveRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	leave, err := h.svc.Leaves.Resolve(r.Context(), actorOf(r), leaveID, req.Approve)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leave)
}

func (h *Handler) cancelLeave(w http.ResponseWriter, r *http.Request) {
	leaveID, err := pathID(r, "leaveID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	leave, err := h.svc.Leaves.Cancel(r.Context(), actorOf(r), leaveID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, leave)
}
