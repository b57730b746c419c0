package observability

import "github.com/prometheus/client_golang/prometheus"

var (
	APIRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mudamail_api_requests_total", Help: "API requests"},
		[]string{"endpoint", "status"},
	)
	DispatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mudamail_dispatch_runs_total", Help: "Dispatcher runs"},
		[]string{"queue", "result"},
	)
	EmailSend = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "mudamail_email_send_total", Help: "Email send outcomes"},
		[]string{"provider", "result"},
	)
	EmailSendLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "mudamail_email_send_latency_seconds", Help: "Provider send latency"},
	)
	Intercepted = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "mudamail_test_mode_intercepted_total", Help: "Emails intercepted by test mode"},
	)
	TrackingWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "mudamail_tracking_write_failures_total", Help: "Tracking rows that failed to persist"},
	)
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(APIRequests, DispatchRuns, EmailSend, EmailSendLatency, Intercepted, TrackingWriteFailures)
}
