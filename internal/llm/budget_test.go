package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type scriptedClient struct {
	response string
	calls    int
}

func (s *scriptedClient) Complete(_ context.Context, _ Request) (string, error) {
	s.calls++
	return s.response, nil
}

func TestBudgetRejectsOverspend(t *testing.T) {
	inner := &scriptedClient{response: "ok"}
	client := WithBudget(inner, NewAccountant(100))

	req := Request{
		Messages: []Message{{Role: RoleUser, Content: strings.Repeat("x", 2000)}},
		User:     "alice",
	}

	_, err := client.Complete(context.Background(), req)
	if !errors.Is(err, ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", err)
	}
	if inner.calls != 0 {
		t.Errorf("inner client should not have been called, got %d calls", inner.calls)
	}
}

func TestBudgetAllowsWithinBudget(t *testing.T) {
	inner := &scriptedClient{response: "ok"}
	client := WithBudget(inner, NewAccountant(10000))

	req := Request{
		Messages: []Message{{Role: RoleUser, Content: "short prompt"}},
		User:     "alice",
	}

	if _, err := client.Complete(context.Background(), req); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls)
	}
}

func TestBudgetPerUserIsolation(t *testing.T) {
	acct := NewAccountant(100)
	acct.Record("alice", 100)

	if err := acct.Check("bob", 50); err != nil {
		t.Errorf("bob should have a fresh budget: %v", err)
	}
	if err := acct.Check("alice", 50); err == nil {
		t.Error("alice should be over budget")
	}
	if rem := acct.Remaining("alice"); rem != 0 {
		t.Errorf("Remaining(alice) = %d, want 0", rem)
	}
}
