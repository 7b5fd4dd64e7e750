package observability

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_http_requests_total",
			Help: "Total number of HTTP requests processed by the messaging service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "messaging_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	grpcServerHandledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grpc_server_handled_total",
			Help: "Total number of gRPC requests handled by the server.",
		},
		[]string{"grpc_service", "grpc_method", "grpc_code"},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "messaging_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	brokerPublishErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_broker_publish_errors_total",
			Help: "Total number of event broker publish errors.",
		},
		[]string{"broker"},
	)
	busPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_bus_published_total",
			Help: "Total number of delivery bus publishes by outcome.",
		},
		[]string{"outcome"},
	)
	busDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_bus_deliveries_total",
			Help: "Total number of per-subscriber deliveries by outcome.",
		},
		[]string{"outcome"},
	)
	busSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "messaging_bus_subscriptions",
			Help: "Number of live delivery bus subscriptions.",
		},
	)
	serviceOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messaging_service_operations_total",
			Help: "Total number of service operations by result.",
		},
		[]string{"operation", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		brokerPublishErrorsTotal,
		busPublishedTotal,
		busDeliveriesTotal,
		busSubscriptions,
		serviceOpsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func GRPCServerMetricsUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		statusInfo := status.Convert(err)
		service, method := splitFullMethod(info.FullMethod)
		grpcServerHandledTotal.WithLabelValues(service, method, statusInfo.Code().String()).Inc()
		return resp, err
	}
}

func splitFullMethod(fullMethod string) (string, string) {
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 3 {
		return "unknown", "unknown"
	}
	return parts[1], parts[2]
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncBrokerPublishError(broker string) {
	brokerPublishErrorsTotal.WithLabelValues(broker).Inc()
}

// Bus publish outcomes.
const (
	BusDelivered    = "delivered"
	BusNoSubscriber = "no_subscriber"
	BusDropped      = "dropped"
	BusRelayFailed  = "relay_failed"
)

func IncBusPublish(outcome string) {
	busPublishedTotal.WithLabelValues(outcome).Inc()
}

func IncBusDelivery(outcome string) {
	busDeliveriesTotal.WithLabelValues(outcome).Inc()
}

func AddBusSubscriptions(delta float64) {
	busSubscriptions.Add(delta)
}

func IncServiceOp(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	serviceOpsTotal.WithLabelValues(operation, result).Inc()
}
