package diagnostics

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"playerhooks/internal/events"
)

func TestCheck(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	problems := Check(bus)
	assert.Len(t, problems, len(RequiredHooks))
	assert.Contains(t, problems, "no listeners attached to hook: user_approved")

	noop := func(context.Context, events.Hook) error { return nil }
	for _, h := range RequiredHooks {
		bus.Subscribe(h, noop)
	}
	logger := zerolog.Nop()
	assert.Empty(t, Run(bus, &logger))
}

func TestInspect(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	noop := func(context.Context, events.Hook) error { return nil }
	bus.Subscribe(events.HookUserApproved, noop)

	report := Inspect(bus)
	assert.False(t, report.OK)
	assert.Len(t, report.Problems, len(RequiredHooks)-1)
	assert.Equal(t, []string{events.HookUserApproved}, report.Hooks)

	for _, h := range RequiredHooks {
		bus.Subscribe(h, noop)
	}
	report = Inspect(bus)
	assert.True(t, report.OK)
	assert.NotNil(t, report.Problems)
	assert.Empty(t, report.Problems)
	assert.Len(t, report.Hooks, len(RequiredHooks))
}
