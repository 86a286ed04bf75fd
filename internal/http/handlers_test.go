package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jefersonfloz/ahorraplus/internal/auth"
	"github.com/jefersonfloz/ahorraplus/internal/goalstore/memory"
	"github.com/jefersonfloz/ahorraplus/internal/ledger"
)

const testUserID = int64(42)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newTestServer(t *testing.T, income int64) (*Server, *memory.Store, string) {
	t.Helper()
	store := memory.New()
	store.SeedIncome(testUserID, decimal.NewFromInt(income))

	verifier := auth.NewVerifier("test-secret")
	token, err := verifier.Issue(testUserID, "ana@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	s := NewServer(":0", store, verifier, Options{Policy: ledger.DefaultPolicy()})
	return s, store, token
}

func doRequest(t *testing.T, s *Server, token, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode envelope from %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func createTestGoal(t *testing.T, s *Server, token string, target int64, priority string) goalPayload {
	t.Helper()
	rec, env := doRequest(t, s, token, http.MethodPost, "/api/savings-goals", map[string]any{
		"name":         "Meta",
		"targetAmount": target,
		"endDate":      "2027-12-31",
		"priority":     priority,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create goal: status %d, body %s", rec.Code, rec.Body.String())
	}
	var payload goalPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode goal: %v", err)
	}
	return payload
}

func TestHealthz(t *testing.T) {
	s, _, _ := newTestServer(t, 0)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz: status %d, body %q", rec.Code, rec.Body.String())
	}
}

func TestAPIRequiresToken(t *testing.T) {
	s, _, _ := newTestServer(t, 0)

	rec, env := doRequest(t, s, "", http.MethodGet, "/api/savings-goals", nil)
	if rec.Code != http.StatusUnauthorized || env.Success {
		t.Errorf("expected 401, got %d (%s)", rec.Code, rec.Body.String())
	}

	rec, _ = doRequest(t, s, "garbage.token.here", http.MethodGet, "/api/savings-goals", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad token, got %d", rec.Code)
	}
}

func TestCreateAndListGoals(t *testing.T) {
	s, _, token := newTestServer(t, 1000)

	created := createTestGoal(t, s, token, 500, "MEDIUM")
	if created.ID == 0 || created.Status != "ACTIVE" || !created.CurrentAmount.IsZero() {
		t.Errorf("unexpected created goal: %+v", created)
	}

	rec, env := doRequest(t, s, token, http.MethodGet, "/api/savings-goals", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var goals []goalPayload
	if err := json.Unmarshal(env.Data, &goals); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(goals) != 1 || goals[0].Name != "Meta" || goals[0].EndDate != "2027-12-31" {
		t.Errorf("unexpected list: %+v", goals)
	}
	if goals[0].CanWithdraw {
		t.Errorf("empty goal should not allow withdrawals")
	}
}

func TestCreateGoalValidation(t *testing.T) {
	s, _, token := newTestServer(t, 1000)

	rec, _ := doRequest(t, s, token, http.MethodPost, "/api/savings-goals", map[string]any{
		"name":         "",
		"targetAmount": 500,
		"endDate":      "2027-12-31",
		"priority":     "LOW",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty name: status %d, want 422", rec.Code)
	}

	rec, _ = doRequest(t, s, token, http.MethodPost, "/api/savings-goals", map[string]any{
		"name":         "Meta",
		"targetAmount": 500,
		"endDate":      "31/12/2027",
		"priority":     "LOW",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad date: status %d, want 422", rec.Code)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ledger.CompletedEvent
}

func (p *recordingPublisher) PublishGoalCompleted(_ context.Context, ev ledger.CompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func TestCompletionPublishCarriesSessionEmail(t *testing.T) {
	store := memory.New()
	store.SeedIncome(testUserID, decimal.NewFromInt(1000))

	verifier := auth.NewVerifier("test-secret")
	token, err := verifier.Issue(testUserID, "ana@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	pub := &recordingPublisher{}
	s := NewServer(":0", store, verifier, Options{
		Policy:    ledger.DefaultPolicy(),
		Publisher: pub,
	})

	goal := createTestGoal(t, s, token, 500, "LOW")
	rec, _ := doRequest(t, s, token, http.MethodPost,
		fmt.Sprintf("/api/savings-goals/%d/add", goal.ID),
		map[string]any{"amount": 500})
	if rec.Code != http.StatusOK {
		t.Fatalf("add: status %d, body %s", rec.Code, rec.Body.String())
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 published completion, got %d", len(pub.events))
	}
	if pub.events[0].UserEmail != "ana@example.com" {
		t.Errorf("published email = %q, want the token's email claim", pub.events[0].UserEmail)
	}
}

func TestAddFundsClampsAndCompletes(t *testing.T) {
	s, _, token := newTestServer(t, 1000)
	goal := createTestGoal(t, s, token, 500, "LOW")

	rec, env := doRequest(t, s, token, http.MethodPost,
		fmt.Sprintf("/api/savings-goals/%d/add", goal.ID),
		map[string]any{"amount": 800})
	if rec.Code != http.StatusOK {
		t.Fatalf("add: status %d, body %s", rec.Code, rec.Body.String())
	}
	var updated goalPayload
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !updated.CurrentAmount.Equal(decimal.NewFromInt(500)) || updated.Status != "COMPLETED" {
		t.Errorf("expected clamped completed goal, got %+v", updated)
	}

	// Only the applied portion left the available balance.
	rec, env = doRequest(t, s, token, http.MethodGet, "/api/savings-goals/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: status %d", rec.Code)
	}
	var summary struct {
		AvailableBalance decimal.Decimal `json:"availableBalance"`
		CompletedCount   int             `json:"completedCount"`
	}
	if err := json.Unmarshal(env.Data, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if !summary.AvailableBalance.Equal(decimal.NewFromInt(500)) || summary.CompletedCount != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestAddFundsInsufficientBalance(t *testing.T) {
	s, _, token := newTestServer(t, 100)
	goal := createTestGoal(t, s, token, 5000, "LOW")

	rec, env := doRequest(t, s, token, http.MethodPost,
		fmt.Sprintf("/api/savings-goals/%d/add", goal.ID),
		map[string]any{"amount": 500})
	if rec.Code != http.StatusUnprocessableEntity || env.Success {
		t.Errorf("expected 422, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestWithdrawLockedHighPriority(t *testing.T) {
	s, _, token := newTestServer(t, 1000)
	goal := createTestGoal(t, s, token, 500, "HIGH")

	rec, _ := doRequest(t, s, token, http.MethodPost,
		fmt.Sprintf("/api/savings-goals/%d/add", goal.ID),
		map[string]any{"amount": 300})
	if rec.Code != http.StatusOK {
		t.Fatalf("add: status %d", rec.Code)
	}

	rec, env := doRequest(t, s, token, http.MethodPost,
		fmt.Sprintf("/api/savings-goals/%d/withdraw", goal.ID),
		map[string]any{"amount": 100})
	if rec.Code != http.StatusConflict || env.Success {
		t.Errorf("expected 409 for locked withdrawal, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestWithdrawAfterCompletion(t *testing.T) {
	s, _, token := newTestServer(t, 1000)
	goal := createTestGoal(t, s, token, 500, "HIGH")

	rec, _ := doRequest(t, s, token, http.MethodPost,
		fmt.Sprintf("/api/savings-goals/%d/add", goal.ID),
		map[string]any{"amount": 500})
	if rec.Code != http.StatusOK {
		t.Fatalf("add: status %d", rec.Code)
	}

	rec, env := doRequest(t, s, token, http.MethodPost,
		fmt.Sprintf("/api/savings-goals/%d/withdraw", goal.ID),
		map[string]any{"amount": 200})
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw: status %d, body %s", rec.Code, rec.Body.String())
	}
	var updated goalPayload
	if err := json.Unmarshal(env.Data, &updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !updated.CurrentAmount.Equal(decimal.NewFromInt(300)) {
		t.Errorf("current = %s, want 300", updated.CurrentAmount)
	}
}

func TestRefundPreviewAndDelete(t *testing.T) {
	s, _, token := newTestServer(t, 1000)
	goal := createTestGoal(t, s, token, 500, "LOW")

	rec, _ := doRequest(t, s, token, http.MethodPost,
		fmt.Sprintf("/api/savings-goals/%d/add", goal.ID),
		map[string]any{"amount": 300})
	if rec.Code != http.StatusOK {
		t.Fatalf("add: status %d", rec.Code)
	}

	rec, env := doRequest(t, s, token, http.MethodGet,
		fmt.Sprintf("/api/savings-goals/%d/refund-preview", goal.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("refund preview: status %d", rec.Code)
	}
	var preview struct {
		WillRefund bool `json:"willRefund"`
	}
	if err := json.Unmarshal(env.Data, &preview); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !preview.WillRefund {
		t.Error("active goal deletion should refund")
	}

	rec, _ = doRequest(t, s, token, http.MethodDelete,
		fmt.Sprintf("/api/savings-goals/%d", goal.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}

	// Refund restored the full balance.
	rec, env = doRequest(t, s, token, http.MethodGet, "/api/savings-goals/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: status %d", rec.Code)
	}
	var summary struct {
		AvailableBalance decimal.Decimal `json:"availableBalance"`
		GoalCount        int             `json:"goalCount"`
	}
	if err := json.Unmarshal(env.Data, &summary); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if !summary.AvailableBalance.Equal(decimal.NewFromInt(1000)) || summary.GoalCount != 0 {
		t.Errorf("summary after delete = %+v", summary)
	}
}

func TestDeleteUnknownGoal(t *testing.T) {
	s, _, token := newTestServer(t, 1000)
	// Touch the API once so the session controller loads.
	doRequest(t, s, token, http.MethodGet, "/api/savings-goals", nil)

	rec, _ := doRequest(t, s, token, http.MethodDelete, "/api/savings-goals/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestRemoteFailureMapsToBadGateway(t *testing.T) {
	s, store, token := newTestServer(t, 1000)
	goal := createTestGoal(t, s, token, 500, "LOW")

	store.FailNext("add", fmt.Errorf("store exploded"))
	rec, _ := doRequest(t, s, token, http.MethodPost,
		fmt.Sprintf("/api/savings-goals/%d/add", goal.ID),
		map[string]any{"amount": 100})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestExportNotConfigured(t *testing.T) {
	s, _, token := newTestServer(t, 1000)

	rec, _ := doRequest(t, s, token, http.MethodPost, "/api/savings-goals/export", nil)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", rec.Code)
	}
}
