package telemetry

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/obragco/relay/pkg/logger"
	"github.com/obragco/relay/pkg/metrics"
)

// newTestRecorder creates a recorder with its own registry.
// Callers should "r.Close()" to drain enqueued stats before asserting counters.
func newTestRecorder() (*Recorder, *metrics.Metrics) {
	m := metrics.New(prometheus.NewRegistry())

	r, err := NewRecorder(&Config{
		Metrics: m,
		Logger:  logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	return r, m
}

var _ = Describe("Recorder", func() {
	var (
		rec *Recorder
		m   *metrics.Metrics
	)

	BeforeEach(func() {
		rec, m = newTestRecorder()
	})

	Describe("Record", func() {
		It("returns true when the queue has capacity", func() {
			ok := rec.Record(StreamStats{Outcome: metrics.OutcomeCompleted})
			Expect(ok).To(BeTrue())
			rec.Close()
		})
	})

	Describe("counter application", func() {
		BeforeEach(func() {
			rec.Record(StreamStats{
				Outcome:       metrics.OutcomeCompleted,
				FramesDecoded: 5,
				FramesDropped: 1,
				SoftErrors:    2,
				UnknownEvents: 3,
				ContentBytes:  42,
				Duration:      150 * time.Millisecond,
			})
			rec.Record(StreamStats{
				Outcome:       metrics.OutcomeFailed,
				FramesDecoded: 1,
			})

			// Drain the pool so all stats are applied before assertions.
			rec.Close()
		})

		It("counts requests by outcome", func() {
			completed := m.ChatRequests.WithLabelValues(metrics.OutcomeCompleted)
			failed := m.ChatRequests.WithLabelValues(metrics.OutcomeFailed)
			Expect(testutil.ToFloat64(completed)).To(Equal(1.0))
			Expect(testutil.ToFloat64(failed)).To(Equal(1.0))
		})

		It("accumulates frame counters across streams", func() {
			Expect(testutil.ToFloat64(m.FramesDecoded)).To(Equal(6.0))
			Expect(testutil.ToFloat64(m.FramesDropped)).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.SoftErrors)).To(Equal(2.0))
			Expect(testutil.ToFloat64(m.UnknownEvents)).To(Equal(3.0))
		})
	})

	Describe("shutdown", func() {
		It("drops stats submitted after Close instead of panicking", func() {
			rec.Close()

			var ok bool
			Expect(func() { ok = rec.Record(StreamStats{Outcome: metrics.OutcomeFailed}) }).NotTo(Panic())
			Expect(ok).To(BeFalse())

			// Nothing was applied to the collectors.
			failed := m.ChatRequests.WithLabelValues(metrics.OutcomeFailed)
			Expect(testutil.ToFloat64(failed)).To(Equal(0.0))
		})

		It("tolerates Close being called twice", func() {
			rec.Close()
			Expect(rec.Close).NotTo(Panic())
		})
	})

	Describe("without metrics configured", func() {
		It("still drains stats without panicking", func() {
			r, err := NewRecorder(&Config{Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			Expect(r.Record(StreamStats{Outcome: metrics.OutcomeCompleted})).To(BeTrue())
			Expect(r.Close).NotTo(Panic())
		})
	})
})
