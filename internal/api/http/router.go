// Package http serves the dashboard REST API.
package http

import (
	"context"
	"net/http"
	"time"

	"gangkeeper-backend/internal/security"
	"gangkeeper-backend/internal/service"

	"github.com/gorilla/mux"
)

// JobRunner runs a named maintenance job on demand.
type JobRunner interface {
	Run(ctx context.Context, name string) error
}

// Handler holds everything the REST handlers call into.
type Handler struct {
	svc            *service.Services
	tokens         security.TokenManager
	jobs           JobRunner
	transferWindow time.Duration
}

func NewHandler(svc *service.Services, tokens security.TokenManager, jobs JobRunner, transferWindow time.Duration) *Handler {
	if transferWindow <= 0 {
		transferWindow = 72 * time.Hour
	}
	return &Handler{svc: svc, tokens: tokens, jobs: jobs, transferWindow: transferWindow}
}

// Router registers every named route. Route names key the security table in
// config.RouteSecurityConfig.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.requestContext, h.authenticate)

	r.HandleFunc("/health", h.health).Methods(http.MethodGet).Name("Health")

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/gangs", h.createGang).Methods(http.MethodPost).Name("CreateGang")
	api.HandleFunc("/gangs/{gangID:[0-9]+}", h.getGang).Methods(http.MethodGet).Name("GetGang")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/members", h.listMembers).Methods(http.MethodGet).Name("ListMembers")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/members", h.registerSelf).Methods(http.MethodPost).Name("RegisterSelf")
	api.HandleFunc("/members/{memberID:[0-9]+}/review", h.reviewMember).Methods(http.MethodPost).Name("ReviewMember")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/roles/sync", h.syncRoles).Methods(http.MethodPost).Name("SyncRoles")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/audit", h.listAuditLog).Methods(http.MethodGet).Name("ListAuditLog")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/me", h.myPermissions).Methods(http.MethodGet).Name("MyPermissions")

	api.HandleFunc("/gangs/{gangID:[0-9]+}/transactions", h.postTransaction).Methods(http.MethodPost).Name("PostTransaction")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/transactions", h.listTransactions).Methods(http.MethodGet).Name("ListTransactions")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/requests", h.submitTransaction).Methods(http.MethodPost).Name("SubmitTransaction")
	api.HandleFunc("/transactions/{transactionID:[0-9]+}/resolve", h.resolveTransaction).Methods(http.MethodPost).Name("ResolveTransaction")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/reconcile", h.reconcile).Methods(http.MethodGet).Name("Reconcile")

	api.HandleFunc("/gangs/{gangID:[0-9]+}/sessions", h.createSession).Methods(http.MethodPost).Name("CreateSession")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/sessions", h.listSessions).Methods(http.MethodGet).Name("ListSessions")
	api.HandleFunc("/sessions/{sessionID:[0-9]+}/start", h.startSession).Methods(http.MethodPost).Name("StartSession")
	api.HandleFunc("/sessions/{sessionID:[0-9]+}/checkin", h.checkIn).Methods(http.MethodPost).Name("CheckIn")
	api.HandleFunc("/sessions/{sessionID:[0-9]+}/close", h.closeSession).Methods(http.MethodPost).Name("CloseSession")
	api.HandleFunc("/sessions/{sessionID:[0-9]+}/cancel", h.cancelSession).Methods(http.MethodPost).Name("CancelSession")
	api.HandleFunc("/sessions/{sessionID:[0-9]+}/records", h.listRecords).Methods(http.MethodGet).Name("ListRecords")

	api.HandleFunc("/gangs/{gangID:[0-9]+}/leaves", h.requestLeave).Methods(http.MethodPost).Name("RequestLeave")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/leaves", h.listLeaves).Methods(http.MethodGet).Name("ListLeaves")
	api.HandleFunc("/leaves/{leaveID:[0-9]+}/resolve", h.resolveLeave).Methods(http.MethodPost).Name("ResolveLeave")
	api.HandleFunc("/leaves/{leaveID:[0-9]+}/cancel", h.cancelLeave).Methods(http.MethodPost).Name("CancelLeave")

	api.HandleFunc("/gangs/{gangID:[0-9]+}/transfer", h.startTransfer).Methods(http.MethodPost).Name("StartTransfer")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/transfer", h.cancelTransfer).Methods(http.MethodDelete).Name("CancelTransfer")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/transfer/confirm", h.confirmTransfer).Methods(http.MethodPost).Name("ConfirmTransfer")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/transfer/leave", h.leaveTransfer).Methods(http.MethodPost).Name("LeaveTransfer")
	api.HandleFunc("/gangs/{gangID:[0-9]+}/transfer/complete", h.completeTransfer).Methods(http.MethodPost).Name("CompleteTransfer")

	api.HandleFunc("/jobs/{job}", h.runJob).Methods(http.MethodPost).Name("RunJob")

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
