package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.Booking("created")
	c.Cancellation("full", 100)
	c.JobExecuted("mark-completed", "done", time.Second)
	c.ObserveRequest("GET", "/", 200, time.Millisecond)
}

func TestCollectorCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector("test", reg)

	c.Booking("created")
	c.Booking("created")
	c.Booking("conflict")
	c.Cancellation("half", 250)

	if got := testutil.ToFloat64(c.BookingsTotal.WithLabelValues("created")); got != 2 {
		t.Errorf("created bookings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.RefundedAmount); got != 250 {
		t.Errorf("refunded = %v, want 250", got)
	}
}
