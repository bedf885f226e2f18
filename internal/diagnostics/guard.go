// Package diagnostics verifies at startup that the wiring between hooks, adapters and the
// topic registry is complete.
package diagnostics

import (
	"fmt"

	"github.com/rs/zerolog"

	"playerhooks/internal/events"
	"playerhooks/internal/topics"
)

// RequiredTopics must be exposed by the topic registry.
var RequiredTopics = []topics.Topic{
	topics.RegistrationCompleted,
	topics.UserApproved,
	topics.UserDeclined,
	topics.OrderCompleted,
	topics.EmailSent,
	topics.ProfileUpdated,
}

// RequiredHooks must have at least one subscriber.
var RequiredHooks = []string{
	events.HookRegistrationCompleted,
	events.HookUserApproved,
	events.HookUserDeclined,
	events.HookProfileUpdated,
}

// HookRegistry reports hook subscriptions.
type HookRegistry interface {
	HasSubscribers(name string) bool
	Names() []string
}

// Report is the outcome of a contract check together with the hooks that have listeners.
type Report struct {
	OK       bool     `json:"ok"`
	Problems []string `json:"problems"`
	Hooks    []string `json:"hooks"`
}

// Check returns a human-readable line per problem; nil means the contract holds.
func Check(hooks HookRegistry) []string {
	var problems []string
	for _, t := range RequiredTopics {
		if !topics.Known(t) {
			problems = append(problems, fmt.Sprintf("webhook topic not exposed by the registry: %s", t))
		}
	}
	for _, h := range RequiredHooks {
		if !hooks.HasSubscribers(h) {
			problems = append(problems, fmt.Sprintf("no listeners attached to hook: %s", h))
		}
	}
	return problems
}

// Inspect runs Check and lists the subscribed hooks.
func Inspect(hooks HookRegistry) Report {
	problems := Check(hooks)
	if problems == nil {
		problems = []string{}
	}
	return Report{OK: len(problems) == 0, Problems: problems, Hooks: hooks.Names()}
}

// Run logs every problem Check finds and returns them.
func Run(hooks HookRegistry, logger *zerolog.Logger) []string {
	problems := Check(hooks)
	for _, p := range problems {
		logger.Error().Str("component", "contract_guard").Msg(p)
	}
	if len(problems) == 0 {
		logger.Info().Str("component", "contract_guard").Strs("hooks", hooks.Names()).Msg("contract checks passed")
	}
	return problems
}
