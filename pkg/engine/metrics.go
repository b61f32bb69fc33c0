package engine

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a prometheus.Collector over one Engine's counters and queue
// occupancy, in the same Describe/Collect shape as the teacher's
// exporter.TCPInfoCollector: counters are plain atomics bumped inline by
// the engine, and Collect reads live queue depth at scrape time rather
// than caching it.
type Metrics struct {
	labels prometheus.Labels

	ticks       uint64
	retriesSent uint64
	giveUps     uint64
	acksMatched uint64
	unknownAcks uint64
	responses   uint64

	descTicks       *prometheus.Desc
	descRetries     *prometheus.Desc
	descGiveUps     *prometheus.Desc
	descAcks        *prometheus.Desc
	descUnknownAcks *prometheus.Desc
	descResponses   *prometheus.Desc
	descQueueDepth  *prometheus.Desc

	queueDepth func() (responses, fling, retry int)
}

// NewMetrics builds a Metrics collector labelled with the engine's xid so
// multiple engines in one process can be told apart on a shared
// registry, exactly the correlation problem the teacher's
// connectionLabels parameter solves for wrapped net.Conns.
func NewMetrics(instanceID string) *Metrics {
	labels := prometheus.Labels{"engine": instanceID}
	const ns = "coap_engine"
	return &Metrics{
		labels: labels,
		descTicks: prometheus.NewDesc(ns+"_ticks_total", "Number of Tick calls processed.",
			nil, labels),
		descRetries: prometheus.NewDesc(ns+"_retries_sent_total", "Number of confirmable retransmissions sent.",
			nil, labels),
		descGiveUps: prometheus.NewDesc(ns+"_give_ups_total", "Number of messages abandoned after exhausting retries.",
			nil, labels),
		descAcks: prometheus.NewDesc(ns+"_acks_matched_total", "Number of inbound ACK/RESET messages matched to a retry entry.",
			nil, labels),
		descUnknownAcks: prometheus.NewDesc(ns+"_unknown_acks_total", "Number of inbound ACK/RESET messages matching nothing outstanding.",
			nil, labels),
		descResponses: prometheus.NewDesc(ns+"_responses_stored_total", "Number of responses stored for later collection.",
			nil, labels),
		descQueueDepth: prometheus.NewDesc(ns+"_queue_depth", "Current occupancy of an internal queue.",
			[]string{"queue"}, labels),
	}
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.descTicks
	ch <- m.descRetries
	ch <- m.descGiveUps
	ch <- m.descAcks
	ch <- m.descUnknownAcks
	ch <- m.descResponses
	ch <- m.descQueueDepth
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(m.descTicks, prometheus.CounterValue, float64(atomic.LoadUint64(&m.ticks)))
	ch <- prometheus.MustNewConstMetric(m.descRetries, prometheus.CounterValue, float64(atomic.LoadUint64(&m.retriesSent)))
	ch <- prometheus.MustNewConstMetric(m.descGiveUps, prometheus.CounterValue, float64(atomic.LoadUint64(&m.giveUps)))
	ch <- prometheus.MustNewConstMetric(m.descAcks, prometheus.CounterValue, float64(atomic.LoadUint64(&m.acksMatched)))
	ch <- prometheus.MustNewConstMetric(m.descUnknownAcks, prometheus.CounterValue, float64(atomic.LoadUint64(&m.unknownAcks)))
	ch <- prometheus.MustNewConstMetric(m.descResponses, prometheus.CounterValue, float64(atomic.LoadUint64(&m.responses)))

	if m.queueDepth != nil {
		resp, fling, retry := m.queueDepth()
		ch <- prometheus.MustNewConstMetric(m.descQueueDepth, prometheus.GaugeValue, float64(resp), "responses")
		ch <- prometheus.MustNewConstMetric(m.descQueueDepth, prometheus.GaugeValue, float64(fling), "fling")
		ch <- prometheus.MustNewConstMetric(m.descQueueDepth, prometheus.GaugeValue, float64(retry), "retry")
	}
}

func (m *Metrics) incTicks()       { atomic.AddUint64(&m.ticks, 1) }
func (m *Metrics) incRetries()     { atomic.AddUint64(&m.retriesSent, 1) }
func (m *Metrics) incGiveUps()     { atomic.AddUint64(&m.giveUps, 1) }
func (m *Metrics) incAcksMatched() { atomic.AddUint64(&m.acksMatched, 1) }
func (m *Metrics) incUnknownAcks() { atomic.AddUint64(&m.unknownAcks, 1) }
func (m *Metrics) incResponses()   { atomic.AddUint64(&m.responses, 1) }
