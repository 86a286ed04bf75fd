package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jefersonfloz/ahorraplus/internal/core"
)

func TestListGoals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s", r.Method)
		}
		if !strings.HasPrefix(r.URL.Path, "/savings-goals") {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("auth header = %q", got)
		}
		if got := r.URL.Query().Get("userId"); got != "42" {
			t.Errorf("userId = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":[
			{"id":1,"userId":42,"name":"Vacaciones","targetAmount":5000,"currentAmount":2500,
			 "endDate":"2026-06-01","priority":"HIGH","status":"ACTIVE"}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-123", time.Second)
	goals, err := c.ListGoals(context.Background(), 42)
	if err != nil {
		t.Fatalf("ListGoals: %v", err)
	}
	if len(goals) != 1 {
		t.Fatalf("got %d goals", len(goals))
	}
	g := goals[0]
	if g.Name != "Vacaciones" || g.Priority != core.PriorityHigh || g.Status != core.StatusActive {
		t.Errorf("unexpected goal: %+v", g)
	}
	if !g.CurrentAmount.Equal(decimal.NewFromInt(2500)) {
		t.Errorf("current = %s", g.CurrentAmount)
	}
	if g.EndDate.String() != "2026-06-01" {
		t.Errorf("end date = %s", g.EndDate)
	}
}

func TestAddFundsReturnsAppliedRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/savings-goals/7/add" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if _, ok := body["amount"]; !ok {
			t.Error("amount missing from request body")
		}
		// Server clamped the 800 request down to the 500 target.
		_, _ = w.Write([]byte(`{"success":true,"data":
			{"id":7,"userId":42,"name":"G","targetAmount":500,"currentAmount":500,
			 "endDate":"2026-06-01","priority":"HIGH","status":"COMPLETED"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	g, err := c.AddFunds(context.Background(), 7, 42, decimal.NewFromInt(800))
	if err != nil {
		t.Fatalf("AddFunds: %v", err)
	}
	if g.Status != core.StatusCompleted {
		t.Errorf("status = %s", g.Status)
	}
	if !g.CurrentAmount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("current = %s, want clamped 500", g.CurrentAmount)
	}
}

func TestTotalIncome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":1234.56}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	total, err := c.TotalIncome(context.Background(), 42)
	if err != nil {
		t.Fatalf("TotalIncome: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("1234.56")) {
		t.Errorf("total = %s", total)
	}
}

func TestErrorStatusSurfacesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"success":false,"data":null,"message":"deposit would overdraw balance"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	_, err := c.AddFunds(context.Background(), 1, 42, decimal.NewFromInt(10))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "deposit would overdraw balance") {
		t.Errorf("error should carry backend message: %v", err)
	}
}

func TestDeleteGoal(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path != "/savings-goals/3" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if err := c.DeleteGoal(context.Background(), 3, 42); err != nil {
		t.Fatalf("DeleteGoal: %v", err)
	}
	if !called {
		t.Error("server not called")
	}
}

func TestMalformedGoalDateRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"id":1,"userId":42,"name":"x","targetAmount":10,
			"currentAmount":0,"endDate":"junio","priority":"LOW","status":"ACTIVE"}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second)
	if _, err := c.ListGoals(context.Background(), 42); err == nil {
		t.Error("expected error for malformed end date")
	}
}
