package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	MEventPublishFailures    MetricKey = "order_event_publish_failed_total"
	MRealtimeSubscribers     MetricKey = "realtime_subscribers"
	MRealtimeDropped         MetricKey = "realtime_messages_dropped_total"
)
