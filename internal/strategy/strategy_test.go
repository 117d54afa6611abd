package strategy

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirst_StopsAtFirstSuccess(t *testing.T) {
	var tried []string
	probe := func(name string, ok bool) Strategy[string] {
		return Strategy[string]{Name: name, Probe: func(context.Context) (string, bool) {
			tried = append(tried, name)
			return "value-" + name, ok
		}}
	}

	v, name, ok := First(context.Background(), []Strategy[string]{
		probe("primary", false),
		{Name: "nil probe"},
		probe("fallback", true),
		probe("generic", true),
	})

	assert.True(t, ok)
	assert.Equal(t, "value-fallback", v)
	assert.Equal(t, "fallback", name)
	assert.Equal(t, []string{"primary", "fallback"}, tried)
}

func TestFirst_AllFail(t *testing.T) {
	v, name, ok := First(context.Background(), []Strategy[int]{
		{Name: "a", Probe: func(context.Context) (int, bool) { return 1, false }},
	})
	assert.False(t, ok)
	assert.Zero(t, v)
	assert.Empty(t, name)
}

func TestFirst_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, _, ok := First(ctx, []Strategy[int]{
		{Name: "a", Probe: func(context.Context) (int, bool) { called = true; return 1, true }},
	})
	assert.False(t, ok)
	assert.False(t, called)
}

func TestMap(t *testing.T) {
	selectors := []string{".primary", ".fallback"}
	chain := Map(selectors, func(s string) string { return s }, func(_ context.Context, s string) (string, bool) {
		return strings.ToUpper(s), s == ".fallback"
	})

	v, name, ok := First(context.Background(), chain)
	assert.True(t, ok)
	assert.Equal(t, ".FALLBACK", v)
	assert.Equal(t, ".fallback", name)
}
