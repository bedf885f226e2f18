package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterTwice(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(deliveries.WithLabelValues("user.approved", "exhausted"))
	IncDelivery("user.approved", "exhausted")
	IncDelivery("user.approved", "exhausted")
	assert.Equal(t, before+2, testutil.ToFloat64(deliveries.WithLabelValues("user.approved", "exhausted")))

	before = testutil.ToFloat64(jobsEnqueued.WithLabelValues("email.sent", "error"))
	IncEnqueued("email.sent", "error")
	assert.Equal(t, before+1, testutil.ToFloat64(jobsEnqueued.WithLabelValues("email.sent", "error")))

	SetDeliveryJobs("redis", "pending", 7)
	SetDeliveryJobs("redis", "pending", 3)
	assert.Equal(t, float64(3), testutil.ToFloat64(deliveryJobs.WithLabelValues("redis", "pending")))

	before = testutil.ToFloat64(schedulerFailovers.WithLabelValues("sqlite"))
	IncFailover("sqlite")
	assert.Equal(t, before+1, testutil.ToFloat64(schedulerFailovers.WithLabelValues("sqlite")))
}
