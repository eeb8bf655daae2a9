package notify

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hackgods/consultation-scheduling/internal/metrics"
)

// Build assembles the configured transport behind a circuit breaker and the
// delivery counters. closeFn releases the transport.
func Build(backend string, brokers []string, topic string, log zerolog.Logger, m *metrics.Collector) (n Notifier, closeFn func() error, err error) {
	var base Notifier
	closeFn = func() error { return nil }

	switch backend {
	case "", "log":
		base = NewLogNotifier(log)
	case "kafka":
		if len(brokers) == 0 {
			return nil, nil, fmt.Errorf("kafka notifier needs at least one broker")
		}
		k := NewKafkaNotifier(brokers, topic)
		base, closeFn = k, k.Close
	default:
		return nil, nil, fmt.Errorf("unknown notify backend %q", backend)
	}

	return Instrumented(NewBreakerNotifier(base, log), m), closeFn, nil
}
