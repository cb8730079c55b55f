package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "The total number of events published to the broadcast channel",
	}, []string{"event"})
	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "events_publish_errors_total",
		Help: "The total number of events that could not be published",
	})
	relayMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "The total number of messages relayed to observers",
	})
	relayErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_errors_total",
		Help: "The total number of failed polls on the broadcast subscription",
	})
	relayRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_restarts_total",
		Help: "The total number of relay restarts after an unexpected exit",
	})
)
