package meta

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "imageforge",
		Subsystem: "meta",
		Name:      "merges_total",
		Help:      "Canonical meta.json merge writes performed.",
	})
	mergeConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "imageforge",
		Subsystem: "meta",
		Name:      "merge_conflicts_total",
		Help:      "Merges rejected because documents disagreed on an identity field.",
	})
	delayedWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "imageforge",
		Subsystem: "meta",
		Name:      "delayed_writes_total",
		Help:      "Writes staged into per-artifact side files.",
	})
)
