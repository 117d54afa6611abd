// Package strategy runs ordered lists of probes until one produces a value.
//
// Selector fallback chains are built as data: adding a locator means adding a
// Strategy to a list, never another branch in the caller.
package strategy

import "context"

// Strategy is one named attempt at producing a T.
type Strategy[T any] struct {
	Name  string
	Probe func(ctx context.Context) (T, bool)
}

// First runs strategies in order and returns the first value a probe accepts,
// with the name of the strategy that produced it. It stops early when ctx is done.
func First[T any](ctx context.Context, strategies []Strategy[T]) (T, string, bool) {
	var zero T
	for _, s := range strategies {
		if ctx.Err() != nil {
			return zero, "", false
		}
		if s.Probe == nil {
			continue
		}
		if v, ok := s.Probe(ctx); ok {
			return v, s.Name, true
		}
	}
	return zero, "", false
}

// Map builds one strategy per input item.
func Map[I, T any](items []I, name func(I) string, probe func(context.Context, I) (T, bool)) []Strategy[T] {
	out := make([]Strategy[T], 0, len(items))
	for _, item := range items {
		out = append(out, Strategy[T]{
			Name:  name(item),
			Probe: func(ctx context.Context) (T, bool) { return probe(ctx, item) },
		})
	}
	return out
}
