// Package batch drains a list of items strictly one at a time.
package batch

import (
	"context"
	"fmt"
)

// ItemError reports which item stopped a batch.
type ItemError[T any] struct {
	Index int
	Item  T
	Err   error
}

func (e *ItemError[T]) Error() string {
	return fmt.Sprintf("item %d (%v) failed: %v", e.Index, e.Item, e.Err)
}

func (e *ItemError[T]) Unwrap() error {
	return e.Err
}

// Run calls fn for each item in order, waiting for each call to return
// before starting the next. The first failure aborts the remaining items.
// An empty list is a no-op.
func Run[T any](ctx context.Context, items []T, fn func(ctx context.Context, item T) error) error {
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return &ItemError[T]{Index: i, Item: item, Err: err}
		}
		if err := fn(ctx, item); err != nil {
			return &ItemError[T]{Index: i, Item: item, Err: err}
		}
	}
	return nil
}
