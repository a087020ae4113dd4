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
			Name: "condo_chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "condo_chat_http_request_duration_seconds",
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
			Name: "condo_chat_ws_active_connections",
			Help: "Number of active websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "condo_chat_ws_events_total",
			Help: "Total number of websocket events.",
		},
		[]string{"kind", "event"},
	)
	amqpPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "condo_chat_amqp_published_total",
			Help: "Total number of domain events published.",
		},
		[]string{"routing_key"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "condo_chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
		[]string{"routing_key"},
	)
	consumerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "condo_chat_consumer_events_total",
			Help: "Inbound events by routing key and handling outcome.",
		},
		[]string{"routing_key", "outcome"},
	)
	consumerHandleDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "condo_chat_consumer_handle_duration_seconds",
			Help:    "Time spent handling one inbound event.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"routing_key"},
	)
	messagesStoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "condo_chat_messages_stored_total",
			Help: "Messages persisted, by chat type and entry point.",
		},
		[]string{"chat_type", "source"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		grpcServerHandledTotal,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishedTotal,
		amqpPublishErrorsTotal,
		consumerEventsTotal,
		consumerHandleDuration,
		messagesStoredTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
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

func IncAMQPPublished(routingKey string) {
	amqpPublishedTotal.WithLabelValues(routingKey).Inc()
}

func IncAMQPPublishError(routingKey string) {
	amqpPublishErrorsTotal.WithLabelValues(routingKey).Inc()
}

// ObserveConsumed records the outcome and latency of one inbound delivery.
func ObserveConsumed(routingKey, outcome string, took time.Duration) {
	consumerEventsTotal.WithLabelValues(routingKey, outcome).Inc()
	consumerHandleDuration.WithLabelValues(routingKey).Observe(took.Seconds())
}

func IncMessageStored(chatType, source string) {
	messagesStoredTotal.WithLabelValues(chatType, source).Inc()
}
