package metrics

import (
	"context"
	"net/http"

	"github.com/alejandrodnm/ilguard/internal/domain"
	"github.com/alejandrodnm/ilguard/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements ports.Notifier by counting notifications into Prometheus.
type Recorder struct {
	notifications *prometheus.CounterVec
	protected     prometheus.Gauge
	withdrawIL    *prometheus.HistogramVec

	scanVisited     prometheus.Counter
	scanFailed      prometheus.Counter
	scanDeferred    prometheus.Gauge
	scanEncryptions prometheus.Counter
}

var _ ports.Notifier = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ilguard_notifications_total",
				Help: "Notifications emitted by the controller",
			},
			[]string{"kind"},
		),
		protected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ilguard_protected_positions",
			Help: "Active protected positions across all pools",
		}),
		withdrawIL: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ilguard_withdraw_il_bps",
				Help:    "Price-ratio impermanent loss at withdrawal, in basis points",
				Buckets: []float64{5, 25, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"reason"}, // reason: manual|automatic
		),
		scanVisited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ilguard_scan_visited_total",
			Help: "Positions checked after swaps",
		}),
		scanFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ilguard_scan_failed_total",
			Help: "Position checks that ended in a verifier or math error",
		}),
		scanDeferred: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ilguard_scan_deferred",
			Help: "Active positions left for later swaps by the last check",
		}),
		scanEncryptions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ilguard_scan_encryptions_total",
			Help: "Encryptions requested by swap checks",
		}),
	}

	for _, c := range []prometheus.Collector{
		r.notifications, r.protected, r.withdrawIL,
		r.scanVisited, r.scanFailed, r.scanDeferred, r.scanEncryptions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Notify updates counters from one event's notifications.
func (r *Recorder) Notify(_ context.Context, notifications []domain.Notification) error {
	for _, n := range notifications {
		r.notifications.WithLabelValues(string(n.Kind)).Inc()
		switch n.Kind {
		case domain.NotifyPositionCreated:
			r.protected.Inc()
		case domain.NotifyPositionWithdrawn:
			r.protected.Dec()
			r.withdrawIL.WithLabelValues(string(n.Reason)).Observe(float64(n.ILBps))
		}
	}
	return nil
}

// SetProtected sets the gauge after a restore.
func (r *Recorder) SetProtected(n int) {
	r.protected.Set(float64(n))
}

// ObserveScan records the outcome of one swap check.
func (r *Recorder) ObserveScan(visited, failed, deferred, encryptions int) {
	r.scanVisited.Add(float64(visited))
	r.scanFailed.Add(float64(failed))
	r.scanDeferred.Set(float64(deferred))
	r.scanEncryptions.Add(float64(encryptions))
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
