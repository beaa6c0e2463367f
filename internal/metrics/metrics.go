package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pcb_mes",
		Name:      "stage_transitions_total",
		Help:      "Work order stage transitions by source and target stage",
	}, []string{"from", "to"})

	transitionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pcb_mes",
		Name:      "stage_transition_rejections_total",
		Help:      "Stage transitions refused by validation",
	}, []string{"reason"}) // reason=ChecklistIncomplete|FinalStage|StageMismatch|...

	attachmentsRegistered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pcb_mes",
		Name:      "attachments_registered_total",
		Help:      "CAM attachments registered by kind",
	}, []string{"kind"})

	approvalDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pcb_mes",
		Name:      "job_card_decisions_total",
		Help:      "Job card approval decisions",
	}, []string{"decision"})

	uploadEventsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pcb_mes",
		Name:      "upload_events_skipped_total",
		Help:      "Bucket notifications whose object key is not an attachment key",
	})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pcb_mes",
		Name:      "http_request_duration_seconds",
		Help:      "API request latencies in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func RecordStageTransition(from, to string) {
	stageTransitions.WithLabelValues(from, to).Inc()
}

func RecordTransitionRejected(reason string) {
	transitionRejections.WithLabelValues(reason).Inc()
}

func RecordAttachmentRegistered(kind string) {
	attachmentsRegistered.WithLabelValues(kind).Inc()
}

func RecordApprovalDecision(decision string) {
	approvalDecisions.WithLabelValues(decision).Inc()
}

func RecordUploadEventSkipped() {
	uploadEventsSkipped.Inc()
}

// ObserveHTTPRequest records one API request. route should be the chi route
// pattern, not the raw path, to keep label cardinality bounded.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
