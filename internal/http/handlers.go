package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/jefersonfloz/ahorraplus/internal/core"
	"github.com/jefersonfloz/ahorraplus/internal/ledger"
)

// goalPayload is the wire shape of a goal plus its derived values.
type goalPayload struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"userId"`
	Name           string          `json:"name"`
	TargetAmount   decimal.Decimal `json:"targetAmount"`
	CurrentAmount  decimal.Decimal `json:"currentAmount"`
	StartDate      string          `json:"startDate,omitempty"`
	EndDate        string          `json:"endDate"`
	Priority       string          `json:"priority"`
	Frequency      string          `json:"frequency,omitempty"`
	Status         string          `json:"status"`
	Progress       float64         `json:"progress"`
	DaysRemaining  int             `json:"daysRemaining"`
	DeadlinePassed bool            `json:"deadlinePassed"`
	CanWithdraw    bool            `json:"canWithdraw"`
}

func toPayload(view core.GoalView) goalPayload {
	g := view.Goal
	p := goalPayload{
		ID:             g.ID,
		UserID:         g.UserID,
		Name:           g.Name,
		TargetAmount:   g.TargetAmount,
		CurrentAmount:  g.CurrentAmount,
		EndDate:        g.EndDate.String(),
		Priority:       string(g.Priority),
		Frequency:      string(g.Frequency),
		Status:         string(g.Status),
		Progress:       view.Progress,
		DaysRemaining:  view.DaysRemaining,
		DeadlinePassed: view.DeadlinePassed,
		CanWithdraw:    view.CanWithdraw,
	}
	if !g.StartDate.IsEmpty() {
		p.StartDate = g.StartDate.String()
	}
	return p
}

type createGoalRequest struct {
	Name         string          `json:"name"`
	TargetAmount decimal.Decimal `json:"targetAmount"`
	StartDate    string          `json:"startDate"`
	EndDate      string          `json:"endDate"`
	Priority     string          `json:"priority"`
	Frequency    string          `json:"frequency"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}

	views := c.Views(time.Now())
	payloads := make([]goalPayload, 0, len(views))
	for _, v := range views {
		payloads = append(payloads, toPayload(v))
	}
	writeJSON(w, http.StatusOK, payloads)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}

	var req createGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	draft := core.GoalDraft{
		Name:         req.Name,
		TargetAmount: req.TargetAmount,
		Priority:     core.Priority(req.Priority),
		Frequency:    core.Frequency(req.Frequency),
	}
	if req.EndDate != "" {
		d, err := core.ParseDate(req.EndDate)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "end date must be YYYY-MM-DD")
			return
		}
		draft.EndDate = d
	}
	if req.StartDate != "" {
		d, err := core.ParseDate(req.StartDate)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "start date must be YYYY-MM-DD")
			return
		}
		draft.StartDate = d
	}

	created, err := c.CreateGoal(r.Context(), draft)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPayload(core.NewGoalView(created, time.Now())))
}

func (s *Server) handleAddFunds(w http.ResponseWriter, r *http.Request) {
	s.handleMove(w, r, (*ledger.Controller).Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleMove(w, r, (*ledger.Controller).Withdraw)
}

// handleMove is the shared body of the two money-moving endpoints. The
// returned record is what the store applied, which may differ from the
// requested amount (deposits clamp at the target).
func (s *Server) handleMove(w http.ResponseWriter, r *http.Request,
	op func(*ledger.Controller, context.Context, int64, decimal.Decimal) (core.SavingsGoal, error)) {

	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	goalID, ok := pathGoalID(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	updated, err := op(c, r.Context(), goalID, req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPayload(core.NewGoalView(updated, time.Now())))
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	goalID, ok := pathGoalID(w, r)
	if !ok {
		return
	}

	if err := c.DeleteGoal(r.Context(), goalID); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": goalID})
}

func (s *Server) handleRefundPreview(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	goalID, ok := pathGoalID(w, r)
	if !ok {
		return
	}

	willRefund, err := c.DeleteWillRefund(goalID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"willRefund": willRefund})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}

	snap, loaded := c.Snapshot()
	if !loaded {
		writeLedgerError(w, ledger.ErrNotLoaded)
		return
	}

	views := c.Views(time.Now())
	payloads := make([]goalPayload, 0, len(views))
	var completed int
	for _, v := range views {
		payloads = append(payloads, toPayload(v))
		if v.Goal.Status == core.StatusCompleted {
			completed++
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"availableBalance": snap.AvailableBalance,
		"earmarkedTotal":   snap.EarmarkedTotal(),
		"goalCount":        len(snap.Goals),
		"completedCount":   completed,
		"goals":            payloads,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusNotImplemented, "spreadsheet export not configured")
		return
	}

	c, ok := s.sessionController(w, r)
	if !ok {
		return
	}
	snap, loaded := c.Snapshot()
	if !loaded {
		writeLedgerError(w, ledger.ErrNotLoaded)
		return
	}

	if err := s.exporter.AppendReport(r.Context(), snap, time.Now()); err != nil {
		writeError(w, http.StatusBadGateway, "export failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exported": len(snap.Goals)})
}

// sessionController resolves the controller for the authenticated user,
// writing the error response itself on failure.
func (s *Server) sessionController(w http.ResponseWriter, r *http.Request) (*ledger.Controller, bool) {
	session, ok := sessionFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "no session")
		return nil, false
	}

	c, err := s.controllerFor(r.Context(), session)
	if err != nil {
		writeLedgerError(w, err)
		return nil, false
	}
	return c, true
}

func pathGoalID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid goal id")
		return 0, false
	}
	return id, true
}
