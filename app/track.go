package app

import (
	"context"
	"fmt"
)

// Usage is what a tracked call reports about itself.
type Usage struct {
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	Cost             float64
	ID               string
}

// UsageFunc extracts usage from a call result. Returning false means the
// result carried nothing to record.
type UsageFunc[T any] func(result T) (Usage, bool)

// Track runs call and records the usage extracted from its result.
//
// A failed call is returned as-is and nothing is recorded. If the call
// succeeds but recording fails, the result is still returned together
// with the recording error so the caller keeps the response.
func Track[T any](ctx context.Context, rec Recorder, call func(context.Context) (T, error), extract UsageFunc[T]) (T, error) {
	result, err := call(ctx)
	if err != nil {
		return result, err
	}

	u, ok := extract(result)
	if !ok {
		return result, nil
	}

	if _, err := rec.Log(ctx, LogInput{
		Model:            u.Model,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		Cost:             u.Cost,
		ID:               u.ID,
	}); err != nil {
		return result, fmt.Errorf("record usage: %w", err)
	}
	return result, nil
}
