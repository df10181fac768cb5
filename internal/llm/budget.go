package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smalltown/internal/logging"
)

// Accountant tracks estimated daily token spend per user key. Counts reset
// at the UTC day boundary.
type Accountant struct {
	mu          sync.Mutex
	dailyBudget int
	day         string
	spent       map[string]int
}

// NewAccountant creates an accountant with the given daily per-user budget.
func NewAccountant(dailyBudget int) *Accountant {
	return &Accountant{
		dailyBudget: dailyBudget,
		day:         today(),
		spent:       make(map[string]int),
	}
}

func today() string {
	return time.Now().UTC().Format("2006-01-02")
}

func (a *Accountant) rollover() {
	if d := today(); d != a.day {
		a.day = d
		a.spent = make(map[string]int)
	}
}

// Check returns ErrBudgetExhausted if the estimated spend would push the
// user over budget.
func (a *Accountant) Check(user string, estimated int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollover()
	if a.spent[user]+estimated > a.dailyBudget {
		return fmt.Errorf("%w: user=%s spent=%d budget=%d", ErrBudgetExhausted, user, a.spent[user], a.dailyBudget)
	}
	return nil
}

// Record adds spend to the user's daily total.
func (a *Accountant) Record(user string, tokens int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollover()
	a.spent[user] += tokens
}

// Remaining reports the user's remaining daily budget.
func (a *Accountant) Remaining(user string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rollover()
	rem := a.dailyBudget - a.spent[user]
	if rem < 0 {
		return 0
	}
	return rem
}

// budgetClient rejects calls that would exceed the daily budget and records
// actual estimated usage after each call.
type budgetClient struct {
	inner      Client
	accountant *Accountant
}

// WithBudget wraps a client with budget enforcement.
func WithBudget(inner Client, accountant *Accountant) Client {
	return &budgetClient{inner: inner, accountant: accountant}
}

// estimateTokens approximates token count at four characters per token.
func estimateTokens(req Request) int {
	chars := 0
	for _, m := range req.Messages {
		chars += len(m.Content)
	}
	est := chars/4 + req.MaxTokens
	if est < 1 {
		est = 1
	}
	return est
}

func (b *budgetClient) Complete(ctx context.Context, req Request) (string, error) {
	user := req.User
	if user == "" {
		user = "default"
	}

	estimated := estimateTokens(req)
	if err := b.accountant.Check(user, estimated); err != nil {
		logging.LLM("budget rejection: user=%s estimated=%d remaining=%d", user, estimated, b.accountant.Remaining(user))
		return "", err
	}

	text, err := b.inner.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	b.accountant.Record(user, estimated+len(text)/4)
	return text, nil
}
