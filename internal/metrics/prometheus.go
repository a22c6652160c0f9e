package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the call bridge.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Call metrics
	ActiveCalls   prometheus.Gauge
	CallsStarted  prometheus.Counter
	CallsEnded    prometheus.Counter
	CallDuration  prometheus.Histogram
	CallsRejected *prometheus.CounterVec

	// Media metrics
	MediaFramesIn       prometheus.Counter
	MediaFramesQueued   prometheus.Counter
	PlayoutFramesOut    prometheus.Counter
	PlayoutFramesDrop   prometheus.Counter
	BargeIns            prometheus.Counter
	ProtocolErrors      prometheus.Counter
	StateTransitions    *prometheus.CounterVec
	InactivityPrompts   prometheus.Counter
	SchedulerForceFired prometheus.Counter

	// Realtime AI metrics
	AIConnects       *prometheus.CounterVec
	AIReconnects     prometheus.Counter
	AIFallbacks      prometheus.Counter
	AIConfirmLatency prometheus.Histogram
	AIResponses      prometheus.Counter

	// Synthesis metrics
	SynthesisRequests *prometheus.CounterVec
	SynthesisDuration prometheus.Histogram
	FallbackTones     *prometheus.CounterVec

	// Post-call metrics
	SummariesSaved    prometheus.Counter
	SummariesFailed   prometheus.Counter
	WebhookDeliveries *prometheus.CounterVec
	WebhookRetries    prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		// Call metrics
		ActiveCalls: f.NewGauge(prometheus.GaugeOpts{
			Name: "callbridge_active_calls",
			Help: "Current number of calls being bridged",
		}),
		CallsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_calls_started_total",
			Help: "Total number of calls started",
		}),
		CallsEnded: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_calls_ended_total",
			Help: "Total number of calls torn down",
		}),
		CallDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "callbridge_call_duration_seconds",
			Help:    "Duration of bridged calls in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),
		CallsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callbridge_calls_rejected_total",
			Help: "Total number of stream starts rejected by the registry",
		}, []string{"reason"}),

		// Media metrics
		MediaFramesIn: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_media_frames_received_total",
			Help: "Total number of telephony media frames received",
		}),
		MediaFramesQueued: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_media_frames_queued_total",
			Help: "Total number of media frames queued while the AI session initialized",
		}),
		PlayoutFramesOut: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_playout_frames_sent_total",
			Help: "Total number of playout frames sent to the telephony transport",
		}),
		PlayoutFramesDrop: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_playout_frames_dropped_total",
			Help: "Total number of playout frames dropped on backpressure",
		}),
		BargeIns: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_barge_ins_total",
			Help: "Total number of caller interruptions that truncated AI speech",
		}),
		ProtocolErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_protocol_errors_total",
			Help: "Total number of malformed telephony messages",
		}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callbridge_state_transitions_total",
			Help: "Total number of conversation state transitions by target state",
		}, []string{"state"}),
		InactivityPrompts: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_inactivity_prompts_total",
			Help: "Total number of caller inactivity checks triggered",
		}),
		SchedulerForceFired: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_scheduler_force_fired_total",
			Help: "Total number of frame timeouts force-fired by the wall-clock sweep",
		}),

		// Realtime AI metrics
		AIConnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callbridge_ai_connects_total",
			Help: "Total number of realtime AI session opens by outcome",
		}, []string{"outcome"}),
		AIReconnects: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_ai_reconnects_total",
			Help: "Total number of realtime AI reconnect attempts",
		}),
		AIFallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_ai_fallbacks_total",
			Help: "Total number of calls that fell back to synthesis-only mode",
		}),
		AIConfirmLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "callbridge_ai_session_confirm_seconds",
			Help:    "Time from dial to session configuration confirmation",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to ~6s
		}),
		AIResponses: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_ai_responses_total",
			Help: "Total number of AI responses requested",
		}),

		// Synthesis metrics
		SynthesisRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callbridge_synthesis_requests_total",
			Help: "Total number of speech synthesis requests by outcome",
		}, []string{"outcome"}),
		SynthesisDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "callbridge_synthesis_duration_seconds",
			Help:    "Latency of vendor speech synthesis requests",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		FallbackTones: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callbridge_fallback_tones_total",
			Help: "Total number of times the fallback tone replaced speech, by cause",
		}, []string{"cause"}),

		// Post-call metrics
		SummariesSaved: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_summaries_saved_total",
			Help: "Total number of call summaries persisted",
		}),
		SummariesFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_summaries_failed_total",
			Help: "Total number of call summaries that failed to persist",
		}),
		WebhookDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callbridge_webhook_deliveries_total",
			Help: "Total number of webhook notifications by event and outcome",
		}, []string{"event", "outcome"}),
		WebhookRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "callbridge_webhook_retries_total",
			Help: "Total number of webhook delivery retries",
		}),

		// HTTP API metrics
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callbridge_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "callbridge_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "callbridge_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetActiveCalls sets the current number of active calls
func (m *Metrics) SetActiveCalls(count int) {
	if m == nil {
		return
	}
	m.ActiveCalls.Set(float64(count))
}

// RecordCallStarted increments the calls started counter
func (m *Metrics) RecordCallStarted() {
	if m == nil {
		return
	}
	m.CallsStarted.Inc()
}

// RecordCallEnded increments the calls ended counter and records duration
func (m *Metrics) RecordCallEnded(durationSeconds float64) {
	if m == nil {
		return
	}
	m.CallsEnded.Inc()
	m.CallDuration.Observe(durationSeconds)
}

// RecordCallRejected counts a stream start the registry refused
func (m *Metrics) RecordCallRejected(reason string) {
	if m == nil {
		return
	}
	m.CallsRejected.WithLabelValues(reason).Inc()
}

// RecordMediaFrame counts an inbound media frame; queued is true when the
// frame was held back because the AI session was still initializing.
func (m *Metrics) RecordMediaFrame(queued bool) {
	if m == nil {
		return
	}
	m.MediaFramesIn.Inc()
	if queued {
		m.MediaFramesQueued.Inc()
	}
}

// RecordPlayoutFrame counts a playout frame sent or dropped
func (m *Metrics) RecordPlayoutFrame(dropped bool) {
	if m == nil {
		return
	}
	if dropped {
		m.PlayoutFramesDrop.Inc()
		return
	}
	m.PlayoutFramesOut.Inc()
}

// RecordBargeIn increments the barge-in counter
func (m *Metrics) RecordBargeIn() {
	if m == nil {
		return
	}
	m.BargeIns.Inc()
}

// RecordProtocolError increments the telephony protocol error counter
func (m *Metrics) RecordProtocolError() {
	if m == nil {
		return
	}
	m.ProtocolErrors.Inc()
}

// RecordStateTransition counts a conversation state change
func (m *Metrics) RecordStateTransition(state string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

// RecordInactivityPrompt increments the inactivity prompt counter
func (m *Metrics) RecordInactivityPrompt() {
	if m == nil {
		return
	}
	m.InactivityPrompts.Inc()
}

// RecordSchedulerForceFired counts timeouts fired by the safety sweep
func (m *Metrics) RecordSchedulerForceFired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SchedulerForceFired.Add(float64(n))
}

// RecordAIConnect records a realtime session open attempt
func (m *Metrics) RecordAIConnect(outcome string, confirmSeconds float64) {
	if m == nil {
		return
	}
	m.AIConnects.WithLabelValues(outcome).Inc()
	if outcome == "confirmed" {
		m.AIConfirmLatency.Observe(confirmSeconds)
	}
}

// RecordAIReconnect increments the reconnect counter
func (m *Metrics) RecordAIReconnect() {
	if m == nil {
		return
	}
	m.AIReconnects.Inc()
}

// RecordAIFallback increments the synthesis-only fallback counter
func (m *Metrics) RecordAIFallback() {
	if m == nil {
		return
	}
	m.AIFallbacks.Inc()
}

// RecordAIResponse increments the AI responses counter
func (m *Metrics) RecordAIResponse() {
	if m == nil {
		return
	}
	m.AIResponses.Inc()
}

// RecordSynthesis records a vendor synthesis attempt
func (m *Metrics) RecordSynthesis(outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.SynthesisRequests.WithLabelValues(outcome).Inc()
	if durationSeconds > 0 {
		m.SynthesisDuration.Observe(durationSeconds)
	}
}

// RecordFallbackTone counts a tone substituted for speech
func (m *Metrics) RecordFallbackTone(cause string) {
	if m == nil {
		return
	}
	m.FallbackTones.WithLabelValues(cause).Inc()
}

// RecordSummary records the outcome of persisting a call summary
func (m *Metrics) RecordSummary(saved bool) {
	if m == nil {
		return
	}
	if saved {
		m.SummariesSaved.Inc()
		return
	}
	m.SummariesFailed.Inc()
}

// RecordWebhook records a webhook delivery outcome
func (m *Metrics) RecordWebhook(event, outcome string) {
	if m == nil {
		return
	}
	m.WebhookDeliveries.WithLabelValues(event, outcome).Inc()
}

// RecordWebhookRetry increments the webhook retry counter
func (m *Metrics) RecordWebhookRetry() {
	if m == nil {
		return
	}
	m.WebhookRetries.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
