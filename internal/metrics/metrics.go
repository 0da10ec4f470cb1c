package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/goodieshq/bitbridge/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	packetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bitbridge",
			Subsystem: "serial",
			Name:      "packets_total",
			Help:      "Frames handled from the hub, by request type and outcome.",
		},
		[]string{"type", "result"},
	)
	droppedChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bitbridge",
			Subsystem: "serial",
			Name:      "dropped_chunks_total",
			Help:      "Raw chunks discarded before decode.",
		},
		[]string{"reason"},
	)
	upstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bitbridge",
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Outbound HTTP requests made for hub queries.",
		},
		[]string{"service", "status"},
	)
	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bitbridge",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Outbound HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)
	connected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bitbridge",
			Subsystem: "serial",
			Name:      "connected",
			Help:      "Whether the serial link to the hub is up (1) or not (0).",
		},
	)
	translationsVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "bitbridge",
			Subsystem: "translations",
			Name:      "version",
			Help:      "Version of the active translation table.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(packetsTotal, droppedChunks, upstreamRequests, upstreamDuration, connected, translationsVersion)
	})
}

// RegisterCodecStats exports the codec's skip and truncate counters
func RegisterCodecStats(reg prometheus.Registerer, stats *protocol.Stats) error {
	counters := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "bitbridge", Subsystem: "codec", Name: "skipped_subtypes_total",
			Help: "Payload values skipped because of an unrecognized subtype tag.",
		}, func() float64 { return float64(stats.GetSkippedSubtypes()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "bitbridge", Subsystem: "codec", Name: "unsupported_values_total",
			Help: "Payload values that could not be encoded.",
		}, func() float64 { return float64(stats.GetUnsupportedValues()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "bitbridge", Subsystem: "codec", Name: "truncated_frames_total",
			Help: "Frames truncated to the fixed wire width.",
		}, func() float64 { return float64(stats.GetTruncatedFrames()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "bitbridge", Subsystem: "codec", Name: "truncated_bytes_total",
			Help: "Escaped bytes dropped by frame truncation.",
		}, func() float64 { return float64(stats.GetTruncatedBytes()) }),
	}
	for _, c := range counters {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func RecordPacket(requestType protocol.RequestType, ok bool) {
	RegisterMetrics()
	result := "ok"
	if !ok {
		result = "error"
	}
	packetsTotal.WithLabelValues((requestType & protocol.RequestMask).String(), result).Inc()
}

func RecordDroppedChunk(reason string) {
	RegisterMetrics()
	droppedChunks.WithLabelValues(reason).Inc()
}

// RecordUpstream records one outbound request; status is 0 when no response arrived
func RecordUpstream(service string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := "error"
	if status > 0 {
		statusLabel = strconv.Itoa(status)
	}
	upstreamRequests.WithLabelValues(service, statusLabel).Inc()
	upstreamDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func SetConnected(up bool) {
	RegisterMetrics()
	if up {
		connected.Set(1)
	} else {
		connected.Set(0)
	}
}

func SetTranslationsVersion(v float64) {
	RegisterMetrics()
	translationsVersion.Set(v)
}
