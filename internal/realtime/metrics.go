package realtime

import "expvar"

var (
	metricConnectionsTotal   = expvar.NewInt("realtime_connections_total")
	metricConnectionsActive  = expvar.NewInt("realtime_connections_active")
	metricEventsPublished    = expvar.NewInt("realtime_events_published_total")
	metricSubscribersDropped = expvar.NewInt("realtime_subscribers_dropped_total")
)
