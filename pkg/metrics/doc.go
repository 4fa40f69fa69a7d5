/*
Package metrics provides Prometheus metrics collection and exposition
for DBFS-T, plus a small health/readiness HTTP surface.

Metrics are registered once at package init and exposed via the
standard promhttp handler for scraping.

# Metrics Catalog

dbfst_fs_ops_total{op, result}:
  - Counter. Every completed filesystem operation, labeled by op
    (create, mkdir, rename, ...) and result ("ok" or an error-kind
    string from pkg/ferr).

dbfst_fs_op_duration_seconds{op}:
  - Histogram. Per-operation latency.

dbfst_wal_entries_replayed_total / dbfst_wal_checkpoints_total:
  - Counters. Mount-time recovery activity (spec P6).

dbfst_log_bytes_written_total:
  - Counter. Bytes appended to the data log.

dbfst_inodes_total{type} / dbfst_data_log_free_bytes:
  - Gauges, sampled periodically by Collector rather than updated
    inline, since they reflect accumulated state rather than a single
    operation's outcome.

dbfst_mounts_total{outcome} / dbfst_crc_mismatches_total:
  - Counters for mount outcomes and detected corruption.

# Usage

	start := time.Now()
	_, err := engine.Create(parent, name, perm, uid, gid, ftype, 0)
	metrics.RecordOp("create", start, err)

	collector := metrics.NewCollector(fsCtx)
	collector.Start(15 * time.Second)

	http.Handle("/metrics", metrics.Handler())
	http.HandleFunc("/health", metrics.HealthHandler())
	http.HandleFunc("/ready", metrics.ReadyHandler())

# Design Patterns

Package Init Registration:
  - All metrics registered in init(); MustRegister panics on a
    duplicate name, catching a copy-paste mistake at startup rather
    than silently dropping a metric.

Label Discipline:
  - op and type are both small, fixed enumerations — never an inode
    number or path, which would blow up cardinality.
*/
package metrics
