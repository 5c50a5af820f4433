package ingestion

import (
	"context"
	"time"
)

// Budget reports how much of the invocation's time allowance is left.
type Budget interface {
	Remaining() time.Duration
}

// BudgetFunc adapts a function to Budget.
type BudgetFunc func() time.Duration

func (f BudgetFunc) Remaining() time.Duration { return f() }

// ContextBudget derives the budget from ctx's deadline. A context without a
// deadline has nothing left, so the end-of-batch flush always runs for it.
func ContextBudget(ctx context.Context) Budget {
	return BudgetFunc(func() time.Duration {
		deadline, ok := ctx.Deadline()
		if !ok {
			return 0
		}
		if remaining := time.Until(deadline); remaining > 0 {
			return remaining
		}
		return 0
	})
}

// FixedBudget always reports the same remaining time.
type FixedBudget time.Duration

func (b FixedBudget) Remaining() time.Duration { return time.Duration(b) }
