package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestsTotal tracks REST requests by outcome
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playerlink_api_requests_total",
			Help: "The total number of REST API requests",
		},
		[]string{"status"},
	)

	// APIRequestSeconds tracks REST request latency
	APIRequestSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "playerlink_api_request_seconds",
		Help:    "Time taken by REST API requests in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// TokenRefreshesTotal tracks access token refreshes by outcome
	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playerlink_token_refreshes_total",
			Help: "The total number of access token refresh attempts",
		},
		[]string{"status"},
	)

	// LiveReconnectsTotal tracks live channel reconnect attempts
	LiveReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "playerlink_live_reconnects_total",
		Help: "The total number of live channel reconnect attempts",
	})

	// LiveConnected tracks whether the live channel is currently up
	LiveConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playerlink_live_connected",
		Help: "Whether the live channel is connected (1) or not (0)",
	})

	// WalletsTracked tracks the number of wallets held in local state
	WalletsTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playerlink_wallets_tracked",
		Help: "The number of wallets currently tracked in local state",
	})

	// NotificationsUnread tracks the local unread notification count
	NotificationsUnread = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "playerlink_notifications_unread",
		Help: "The number of unread notifications in local state",
	})

	// FeedEventsRecorded tracks live feed events written by the recorder
	FeedEventsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playerlink_feed_events_recorded_total",
			Help: "The total number of live feed events recorded",
		},
		[]string{"kind", "status"},
	)
)

// RecordAPIRequest records a REST request with the given outcome
func RecordAPIRequest(status string) {
	APIRequestsTotal.WithLabelValues(status).Inc()
}

// RecordTokenRefresh records a token refresh attempt with the given outcome
func RecordTokenRefresh(status string) {
	TokenRefreshesTotal.WithLabelValues(status).Inc()
}

// SetLiveConnected sets the live channel connectivity gauge
func SetLiveConnected(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	LiveConnected.Set(value)
}

// RecordFeedEvent records a feed event write with the given outcome
func RecordFeedEvent(kind, status string) {
	FeedEventsRecorded.WithLabelValues(kind, status).Inc()
}
