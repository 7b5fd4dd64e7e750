package observability

// EventEnvelope wraps connection lifecycle events published to the broker.
// Headers travel as message headers, not in the body.
type EventEnvelope struct {
	EventType string            `json:"event_type"`
	EventName string            `json:"event_name"`
	Payload   any               `json:"payload"`
	Headers   map[string]string `json:"-"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
