package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "taskchat"

// Task outcome labels.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeMalformed = "malformed"
	OutcomeSendError = "send_error"
	OutcomePollError = "poll_error"
	OutcomeAbandoned = "abandoned"
	OutcomeDiscarded = "discarded"
)

// Metrics groups the collectors shared by the lifecycle client and the
// poller. A nil *Metrics is valid and records nothing.
type Metrics struct {
	MessagesSent prometheus.Counter
	TaskOutcomes *prometheus.CounterVec
	PollTicks    prometheus.Counter
	ActivePolls  prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, errors.New("metrics: registerer must not be nil")
	}
	m := &Metrics{
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "User messages submitted to the agent.",
		}),
		TaskOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_outcomes_total",
			Help:      "Local task outcomes by kind.",
		}, []string{"outcome"}),
		PollTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Status fetches issued by the poller.",
		}),
		ActivePolls: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_polls",
			Help:      "Tasks currently registered with the poller.",
		}),
	}
	for _, c := range []prometheus.Collector{m.MessagesSent, m.TaskOutcomes, m.PollTicks, m.ActivePolls} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.MessagesSent.Inc()
}

// Outcome counts one task reaching outcome. Safe on a nil receiver.
func (m *Metrics) Outcome(outcome string) {
	if m == nil {
		return
	}
	m.TaskOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PollTick() {
	if m == nil {
		return
	}
	m.PollTicks.Inc()
}

func (m *Metrics) SetActivePolls(n int) {
	if m == nil {
		return
	}
	m.ActivePolls.Set(float64(n))
}
