package httptransport

import "expvar"

var (
	metricRoomsCreatedTotal  = expvar.NewInt("http_rooms_created_total")
	metricSettleRequests     = expvar.NewInt("http_settle_requests_total")
	metricHTTPInternalErrors = expvar.NewInt("http_internal_errors_total")
)
