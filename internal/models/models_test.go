package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"playerhooks/internal/topics"
)

func TestEndpoint_Subscribed(t *testing.T) {
	ep := Endpoint{Topics: []topics.Topic{topics.UserApproved}}
	assert.True(t, ep.Subscribed(topics.UserApproved))
	assert.False(t, ep.Subscribed(topics.UserDeclined))

	assert.False(t, Endpoint{}.Subscribed(topics.UserApproved))
}

func TestDeliveryJob_Next(t *testing.T) {
	job := DeliveryJob{
		ID:       "job-1",
		Endpoint: Endpoint{URL: "https://hooks.example.com/x", Topics: []topics.Topic{topics.UserApproved}},
		Topic:    topics.UserApproved,
		Body:     `{"event":"user.approved"}`,
		Attempt:  2,
	}

	next := job.Next()
	assert.Equal(t, 3, next.Attempt)
	assert.Equal(t, job.Body, next.Body)
	assert.Equal(t, job.ID, next.ID)

	next.Endpoint.Topics[0] = topics.OrderCompleted
	assert.Equal(t, topics.UserApproved, job.Endpoint.Topics[0], "snapshot must not alias")
}
