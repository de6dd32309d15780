package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gangkeeper-backend/internal/domain"
	"gangkeeper-backend/internal/repository/memory"
	"gangkeeper-backend/internal/security"
	"gangkeeper-backend/internal/service"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockJobRunner struct {
	mock.Mock
}

func (m *MockJobRunner) Run(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

type apiHarness struct {
	t      *testing.T
	router *mux.Router
	tokens security.TokenManager
	jobs   *MockJobRunner
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	svc := service.New(memory.NewStore(), service.Options{MaxAmount: 10_000}, nil, nil)
	tokens := security.NewTokenManager("0123456789abcdef0123456789abcdef", time.Hour)
	jobs := new(MockJobRunner)
	return &apiHarness{t: t, router: NewHandler(svc, tokens, jobs, time.Hour).Router(), tokens: tokens, jobs: jobs}
}

func (a *apiHarness) token(externalID string) string {
	tok, err := a.tokens.GenerateAccessToken(externalID)
	require.NoError(a.t, err)
	return tok
}

func (a *apiHarness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRouter_Authentication(t *testing.T) {
	a := newAPIHarness(t)

	rec := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = a.do(http.MethodGet, "/api/v1/gangs/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/api/v1/gangs/1", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	serviceToken, err := a.tokens.GenerateServiceToken("ops")
	require.NoError(t, err)
	rec = a.do(http.MethodGet, "/api/v1/gangs/1", serviceToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "service token on an access route")

	rec = a.do(http.MethodPost, "/api/v1/jobs/reconcile_balances", a.token("owner"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "access token on a service route")
}

func TestRouter_LedgerFlow(t *testing.T) {
	a := newAPIHarness(t)
	owner, bob := a.token("owner"), a.token("bob")

	rec := a.do(http.MethodPost, "/api/v1/gangs", owner, createGangRequest{Name: "Night Owls", OwnerName: "Boss", PenaltyAmount: 50})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[createGangResponse](t, rec)
	gangPath := fmt.Sprintf("/api/v1/gangs/%d", created.Gang.ID)

	rec = a.do(http.MethodPost, gangPath+"/transactions", owner, postTransactionRequest{Type: domain.TransactionTypeIncome, Amount: 100})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, int64(100), decodeBody[domain.PostResult](t, rec).GangBalance)

	rec = a.do(http.MethodPost, gangPath+"/transactions", owner, postTransactionRequest{Type: domain.TransactionTypeExpense, Amount: 500})
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	rec = a.do(http.MethodPost, gangPath+"/transactions", owner, postTransactionRequest{Type: "BRIBE", Amount: 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(http.MethodPost, gangPath+"/members", bob, map[string]string{"display_name": "Bob"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	bobMember := decodeBody[domain.Member](t, rec)

	rec = a.do(http.MethodGet, gangPath, bob, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code, "pending member")

	rec = a.do(http.MethodPost, fmt.Sprintf("/api/v1/members/%d/review", bobMember.ID), owner, approveRequest{Approve: true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(http.MethodPost, fmt.Sprintf("/api/v1/members/%d/review", bobMember.ID), owner, approveRequest{Approve: true})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodGet, gangPath+"/me", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"gang_id":%d,"actor":"bob","level":"MEMBER"}`, created.Gang.ID), rec.Body.String())

	rec = a.do(http.MethodPost, gangPath+"/requests", bob, postTransactionRequest{Type: domain.TransactionTypeLoan, Amount: 30})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	loan := decodeBody[domain.Transaction](t, rec)
	resolvePath := fmt.Sprintf("/api/v1/transactions/%d/resolve", loan.ID)

	rec = a.do(http.MethodPost, resolvePath, bob, map[string]string{"decision": "approve"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodPost, resolvePath, owner, map[string]string{"decision": "approve"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(70), decodeBody[domain.PostResult](t, rec).GangBalance)

	rec = a.do(http.MethodPost, resolvePath, owner, map[string]string{"decision": "reject"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodGet, gangPath+"/transactions?page=1&page_size=10", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decodeBody[transactionPage](t, rec)
	assert.Equal(t, int32(2), page.Total)

	rec = a.do(http.MethodGet, gangPath+"/reconcile", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[driftResponse](t, rec).Consistent)

	rec = a.do(http.MethodGet, gangPath+"/audit?limit=2", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.AuditLogEntry](t, rec), 2)

	rec = a.do(http.MethodGet, gangPath+"/transactions?page=x", owner, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_SessionAndTransfer(t *testing.T) {
	a := newAPIHarness(t)
	owner := a.token("owner")

	rec := a.do(http.MethodPost, "/api/v1/gangs", owner, createGangRequest{Name: "Crew", PenaltyAmount: 10})
	require.Equal(t, http.StatusCreated, rec.Code)
	gangPath := fmt.Sprintf("/api/v1/gangs/%d", decodeBody[createGangResponse](t, rec).Gang.ID)

	now := time.Now()
	rec = a.do(http.MethodPost, gangPath+"/sessions", owner, createSessionRequest{Name: "Raid", StartTime: now, EndTime: now.Add(time.Hour)})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sessionPath := fmt.Sprintf("/api/v1/sessions/%d", decodeBody[domain.AttendanceSession](t, rec).ID)

	rec = a.do(http.MethodPost, sessionPath+"/checkin", owner, nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "session not started")

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, sessionPath+"/start", owner, nil).Code)
	assert.Equal(t, http.StatusCreated, a.do(http.MethodPost, sessionPath+"/checkin", owner, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(http.MethodPost, sessionPath+"/checkin", owner, nil).Code)

	rec = a.do(http.MethodPost, sessionPath+"/close", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody[domain.CloseSummary](t, rec)
	assert.Equal(t, 1, summary.Present)
	assert.False(t, summary.NoOp)

	rec = a.do(http.MethodGet, sessionPath+"/records", owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.AttendanceRecord](t, rec), 1)

	past := now.Add(-time.Hour)
	rec = a.do(http.MethodPost, gangPath+"/transfer", owner, startTransferRequest{Deadline: &past})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	require.Equal(t, http.StatusOK, a.do(http.MethodPost, gangPath+"/transfer", owner, nil).Code)
	assert.Equal(t, http.StatusConflict, a.do(http.MethodPost, gangPath+"/transfer", owner, nil).Code)
	assert.Equal(t, http.StatusNoContent, a.do(http.MethodDelete, gangPath+"/transfer", owner, nil).Code)
	assert.Equal(t, http.StatusConflict, a.do(http.MethodDelete, gangPath+"/transfer", owner, nil).Code)
}

func TestRouter_RunJob(t *testing.T) {
	a := newAPIHarness(t)
	serviceToken, err := a.tokens.GenerateServiceToken("ops")
	require.NoError(t, err)

	a.jobs.On("Run", mock.Anything, "reconcile_balances").Return(nil)
	a.jobs.On("Run", mock.Anything, "nope").Return(fmt.Errorf("%w: unknown job nope", domain.ErrNotFound))

	rec := a.do(http.MethodPost, "/api/v1/jobs/reconcile_balances", serviceToken, nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = a.do(http.MethodPost, "/api/v1/jobs/nope", serviceToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	a.jobs.AssertExpectations(t)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrValidation, http.StatusBadRequest},
		{domain.ErrInsufficientFunds, http.StatusPaymentRequired},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrPermissionDenied, http.StatusForbidden},
		{domain.ErrAlreadyResolved, http.StatusConflict},
		{domain.ErrAlreadyFinal, http.StatusConflict},
		{domain.ErrInvalidState, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", domain.ErrExternalCollaborator), http.StatusBadGateway},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
