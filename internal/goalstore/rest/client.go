// Package rest talks to the hosted AhorraPlus backend: the authoritative
// goal store and balance source in production deployments. The wire shape
// is the backend's ApiResponse envelope; every call is a single round trip
// with a bounded timeout.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jefersonfloz/ahorraplus/internal/goalstore"
	"github.com/jefersonfloz/ahorraplus/internal/core"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
}

var (
	_ goalstore.GoalStore     = (*Client)(nil)
	_ goalstore.BalanceSource = (*Client)(nil)
)

// NewClient creates a backend client. token is the backend-issued bearer
// token for the session; timeout bounds each round trip (zero means the
// default).
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
		http:    &http.Client{Timeout: timeout},
	}
}

// apiResponse is the backend's uniform envelope.
type apiResponse struct {
	Success *bool           `json:"success,omitempty"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// goalRecord is the wire shape of a savings goal.
type goalRecord struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"userId"`
	Name          string          `json:"name"`
	TargetAmount  decimal.Decimal `json:"targetAmount"`
	CurrentAmount decimal.Decimal `json:"currentAmount"`
	StartDate     string          `json:"startDate,omitempty"`
	EndDate       string          `json:"endDate"`
	Priority      string          `json:"priority"`
	Frequency     string          `json:"frequency,omitempty"`
	Status        string          `json:"status"`
}

func (r goalRecord) toCore() (core.SavingsGoal, error) {
	g := core.SavingsGoal{
		ID:            r.ID,
		UserID:        r.UserID,
		Name:          r.Name,
		TargetAmount:  r.TargetAmount,
		CurrentAmount: r.CurrentAmount,
		Priority:      core.Priority(r.Priority),
		Frequency:     core.Frequency(r.Frequency),
		Status:        core.Status(r.Status),
	}
	if r.EndDate != "" {
		d, err := core.ParseDate(r.EndDate)
		if err != nil {
			return core.SavingsGoal{}, fmt.Errorf("goal %d end date %q: %w", r.ID, r.EndDate, err)
		}
		g.EndDate = d
	}
	if r.StartDate != "" {
		d, err := core.ParseDate(r.StartDate)
		if err != nil {
			return core.SavingsGoal{}, fmt.Errorf("goal %d start date %q: %w", r.ID, r.StartDate, err)
		}
		g.StartDate = d
	}
	return g, nil
}

func (c *Client) ListGoals(ctx context.Context, userID int64) ([]core.SavingsGoal, error) {
	var records []goalRecord
	path := "/savings-goals?userId=" + strconv.FormatInt(userID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	goals := make([]core.SavingsGoal, 0, len(records))
	for _, r := range records {
		g, err := r.toCore()
		if err != nil {
			return nil, fmt.Errorf("list goals: %w", err)
		}
		goals = append(goals, g)
	}
	return goals, nil
}

func (c *Client) CreateGoal(ctx context.Context, userID int64, draft core.GoalDraft) (core.SavingsGoal, error) {
	body := map[string]any{
		"userId":       userID,
		"name":         draft.Name,
		"targetAmount": draft.TargetAmount,
		"endDate":      draft.EndDate.String(),
		"priority":     string(draft.Priority),
	}
	if !draft.StartDate.IsEmpty() {
		body["startDate"] = draft.StartDate.String()
	}
	if draft.Frequency != "" {
		body["frequency"] = string(draft.Frequency)
	}

	var record goalRecord
	if err := c.do(ctx, http.MethodPost, "/savings-goals", body, &record); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("create goal: %w", err)
	}
	return record.toCore()
}

// AddFunds sends the deposit intent. The backend clamps at the target and
// returns the applied record; callers must not assume the full requested
// amount was transferred.
func (c *Client) AddFunds(ctx context.Context, goalID, userID int64, amount decimal.Decimal) (core.SavingsGoal, error) {
	body := map[string]any{"userId": userID, "amount": amount}
	var record goalRecord
	path := fmt.Sprintf("/savings-goals/%d/add", goalID)
	if err := c.do(ctx, http.MethodPost, path, body, &record); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("add funds: %w", err)
	}
	return record.toCore()
}

func (c *Client) WithdrawFunds(ctx context.Context, goalID, userID int64, amount decimal.Decimal) (core.SavingsGoal, error) {
	body := map[string]any{"userId": userID, "amount": amount}
	var record goalRecord
	path := fmt.Sprintf("/savings-goals/%d/withdraw", goalID)
	if err := c.do(ctx, http.MethodPost, path, body, &record); err != nil {
		return core.SavingsGoal{}, fmt.Errorf("withdraw funds: %w", err)
	}
	return record.toCore()
}

func (c *Client) DeleteGoal(ctx context.Context, goalID, userID int64) error {
	path := fmt.Sprintf("/savings-goals/%d?userId=%d", goalID, userID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

func (c *Client) TotalIncome(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	path := "/incomes/total?userId=" + strconv.FormatInt(userID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &total); err != nil {
		return decimal.Zero, fmt.Errorf("total income: %w", err)
	}
	return total, nil
}

func (c *Client) TotalExpenses(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	path := "/expenses/total?userId=" + strconv.FormatInt(userID, 10)
	if err := c.do(ctx, http.MethodGet, path, nil, &total); err != nil {
		return decimal.Zero, fmt.Errorf("total expenses: %w", err)
	}
	return total, nil
}

// do performs one bounded round trip and decodes the envelope's data field
// into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope apiResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return fmt.Errorf("%s %s: status %d: malformed response", method, path, resp.StatusCode)
		}
	}

	if resp.StatusCode >= 400 {
		msg := envelope.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if envelope.Success != nil && !*envelope.Success {
		return fmt.Errorf("%s %s: backend rejected request: %s", method, path, envelope.Message)
	}

	if out != nil {
		if len(envelope.Data) == 0 {
			return fmt.Errorf("%s %s: empty response data", method, path)
		}
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
