package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FSOpsTotal counts every completed filesystem operation by name
	// and outcome ("ok" or an error-kind string from pkg/ferr).
	FSOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbfst_fs_ops_total",
			Help: "Total filesystem operations by op and result",
		},
		[]string{"op", "result"},
	)

	// FSOpDuration tracks per-operation latency.
	FSOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dbfst_fs_op_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// WALEntriesReplayedTotal counts logical operations replayed at
	// mount from a non-empty WAL (spec P6: crash recovery).
	WALEntriesReplayedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbfst_wal_entries_replayed_total",
			Help: "Total WAL entries replayed across all mounts",
		},
	)

	// WALCheckpointsTotal counts successful WAL truncations.
	WALCheckpointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbfst_wal_checkpoints_total",
			Help: "Total WAL checkpoints (truncate to empty) performed",
		},
	)

	// LogBytesWrittenTotal counts bytes appended to the data log.
	LogBytesWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbfst_log_bytes_written_total",
			Help: "Total bytes appended to the data log",
		},
	)

	// InodesTotal tracks live inode count by file type.
	InodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dbfst_inodes_total",
			Help: "Live inodes by file type",
		},
		[]string{"type"},
	)

	// DataLogFreeBytes reports remaining space in the data log region.
	DataLogFreeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dbfst_data_log_free_bytes",
			Help: "Free bytes remaining in the data log region",
		},
	)

	// MountsTotal counts mount attempts by outcome ("fresh", "recovered",
	// "failed").
	MountsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dbfst_mounts_total",
			Help: "Total mount attempts by outcome",
		},
		[]string{"outcome"},
	)

	// CRCMismatchesTotal counts ReadAt calls that detected a corrupt
	// extent (spec P4/P6 negative cases).
	CRCMismatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dbfst_crc_mismatches_total",
			Help: "Total CRC mismatches detected on read",
		},
	)
)

func init() {
	prometheus.MustRegister(FSOpsTotal)
	prometheus.MustRegister(FSOpDuration)
	prometheus.MustRegister(WALEntriesReplayedTotal)
	prometheus.MustRegister(WALCheckpointsTotal)
	prometheus.MustRegister(LogBytesWrittenTotal)
	prometheus.MustRegister(InodesTotal)
	prometheus.MustRegister(DataLogFreeBytes)
	prometheus.MustRegister(MountsTotal)
	prometheus.MustRegister(CRCMismatchesTotal)
}

// Handler returns the Prometheus HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// RecordOp is the common instrumentation point for one filesystem
// operation: bumps FSOpsTotal with its outcome and observes its
// latency, in one call so call sites stay one line.
func RecordOp(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = errorKind(err)
	}
	FSOpsTotal.WithLabelValues(op, result).Inc()
	FSOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
