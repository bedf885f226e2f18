// Package topics is the closed registry of event topics a webhook endpoint can subscribe to.
package topics

import "fmt"

// Topic identifies a category of domain event.
type Topic string

const (
	RegistrationCompleted Topic = "registration.completed"
	UserApproved          Topic = "user.approved"
	UserDeclined          Topic = "user.declined"
	OrderCompleted        Topic = "order.completed"
	EmailSent             Topic = "email.sent"
	ProfileUpdated        Topic = "profile.updated"
)

// Info pairs a topic with its human description.
type Info struct {
	ID          Topic  `json:"id"`
	Description string `json:"description"`
}

var registry = []Info{
	{ID: RegistrationCompleted, Description: "Player finished Complete Registration"},
	{ID: UserApproved, Description: "User approved"},
	{ID: UserDeclined, Description: "User declined"},
	{ID: OrderCompleted, Description: "Order completed/thank-you"},
	{ID: EmailSent, Description: "Platform email sent (welcome/decline)"},
	{ID: ProfileUpdated, Description: "Player profile updated"},
}

// All returns the registry in display order. The slice is a copy.
func All() []Info {
	out := make([]Info, len(registry))
	copy(out, registry)
	return out
}

// Known reports whether t is part of the registry.
func Known(t Topic) bool {
	for _, info := range registry {
		if info.ID == t {
			return true
		}
	}
	return false
}

// Describe returns the description of t, or "" for unknown topics.
func Describe(t Topic) string {
	for _, info := range registry {
		if info.ID == t {
			return info.Description
		}
	}
	return ""
}

// Parse converts s into a registered Topic.
func Parse(s string) (Topic, error) {
	t := Topic(s)
	if !Known(t) {
		return "", fmt.Errorf("unknown topic %q", s)
	}
	return t, nil
}
