package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestConnectionGauge(t *testing.T) {
	before := testutil.ToFloat64(ActiveWebSocketConnections)

	IncConnection()
	IncConnection()
	DecConnection()

	assert.Equal(t, before+1, testutil.ToFloat64(ActiveWebSocketConnections))
	DecConnection()
}

func TestCountersRegister(t *testing.T) {
	// Labelled metrics panic at first use if misregistered; touch each once.
	MessagesPosted.WithLabelValues("post", "room").Inc()
	FanoutFrames.WithLabelValues("event.message.create").Inc()
	RateLimitRequests.WithLabelValues("/rooms").Inc()
	RateLimitExceeded.WithLabelValues("/rooms", "user").Inc()
	RoomSubscriptions.WithLabelValues("r1").Set(1)
	CircuitBreakerState.WithLabelValues("redis").Set(0)

	assert.Equal(t, float64(1), testutil.ToFloat64(FanoutFrames.WithLabelValues("event.message.create")))
}
