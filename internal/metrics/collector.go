// Package metrics exposes engine statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"flushq/internal/queue"
)

// StatsSource is satisfied by *queue.Engine[T] for any T.
type StatsSource interface {
	Stats() queue.Stats
}

// Collector reads a fresh Stats snapshot on every scrape.
type Collector struct {
	src StatsSource

	pending        *prometheus.Desc
	succeeded      *prometheus.Desc
	dispatching    *prometheus.Desc
	background     *prometheus.Desc
	timerRunning   *prometheus.Desc
	enqueued       *prometheus.Desc
	flushes        *prometheus.Desc
	completed      *prometheus.Desc
	failedAttempts *prometheus.Desc
	dropped        *prometheus.Desc
	faults         *prometheus.Desc
}

// NewCollector builds a collector; constLabels are attached to every series
// (e.g. {"queue": "default"}).
func NewCollector(src StatsSource, constLabels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName("flushq", "", name), help, nil, constLabels)
	}
	return &Collector{
		src:            src,
		pending:        desc("items_pending", "Items waiting for the next flush."),
		succeeded:      desc("items_succeeded", "Items that completed successfully."),
		dispatching:    desc("items_dispatching", "Items whose handler call is in progress."),
		background:     desc("background_batches", "Fire-and-forget batches still running."),
		timerRunning:   desc("timer_running", "1 when the periodic flush timer is armed."),
		enqueued:       desc("items_enqueued_total", "Items accepted by Enqueue."),
		flushes:        desc("flushes_total", "Flush batches assembled."),
		completed:      desc("items_completed_total", "Items moved to succeeded."),
		failedAttempts: desc("attempts_failed_total", "Handler attempts that failed."),
		dropped:        desc("items_canceled_dropped_total", "Canceled items dropped at flush time."),
		faults:         desc("dispatch_faults_total", "Flushes that ended in a dispatch fault."),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs() {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	timer := 0.0
	if s.TimerRunning {
		timer = 1
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge(c.pending, float64(s.Pending))
	gauge(c.succeeded, float64(s.Succeeded))
	gauge(c.dispatching, float64(s.Dispatching))
	gauge(c.background, float64(s.Background))
	gauge(c.timerRunning, timer)
	counter(c.enqueued, s.Enqueued)
	counter(c.flushes, s.Flushes)
	counter(c.completed, s.Completed)
	counter(c.failedAttempts, s.FailedAttempts)
	counter(c.dropped, s.Dropped)
	counter(c.faults, s.Faults)
}

func (c *Collector) descs() []*prometheus.Desc {
	return []*prometheus.Desc{
		c.pending, c.succeeded, c.dispatching, c.background, c.timerRunning,
		c.enqueued, c.flushes, c.completed, c.failedAttempts, c.dropped, c.faults,
	}
}
