// Package metrics объявляет Prometheus-метрики сервиса и HTTP-middleware для них.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "finance"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	lifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Subscription status transitions made by the lifecycle job",
		},
		[]string{"to"},
	)

	lifecycleNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "notifications_total",
			Help:      "Trial notifications dispatched by the lifecycle job",
		},
		[]string{"template", "result"},
	)

	lifecycleRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "run_duration_seconds",
			Help:      "Duration of a lifecycle run in seconds",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300},
		},
	)

	paymentReviews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "payments",
			Name:      "reviews_total",
			Help:      "Payment state changes by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	entitlementDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "entitlement",
			Name:      "denials_total",
			Help:      "Requests rejected by plan limits",
		},
		[]string{"plan", "resource"},
	)

	loginThrottled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "login_throttled_total",
			Help:      "Login attempts rejected by the rate limiter",
		},
	)

	notificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sender",
			Name:      "emails_total",
			Help:      "E-mails handled by the notification sender",
		},
		[]string{"template", "result"},
	)
)

// Middleware считает запросы и их длительность по шаблону маршрута chi.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler отдаёт метрики в формате Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordLifecycleTransition(to string) {
	lifecycleTransitions.WithLabelValues(to).Inc()
}

// RecordLifecycleNotification учитывает уведомление; result — sent, skipped или failed.
func RecordLifecycleNotification(template, result string) {
	lifecycleNotifications.WithLabelValues(template, result).Inc()
}

func RecordLifecycleRun(d time.Duration) {
	lifecycleRunDuration.Observe(d.Seconds())
}

// RecordPaymentReview учитывает смену состояния платежа; source — admin или stripe.
func RecordPaymentReview(source, outcome string) {
	paymentReviews.WithLabelValues(source, outcome).Inc()
}

func RecordEntitlementDenial(plan, resource string) {
	entitlementDenials.WithLabelValues(plan, resource).Inc()
}

func RecordLoginThrottled() {
	loginThrottled.Inc()
}

func RecordEmail(template, result string) {
	notificationsDelivered.WithLabelValues(template, result).Inc()
}
