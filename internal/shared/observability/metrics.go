package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	FilesScanned = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factory_files_scanned_total",
		Help: "Total number of source files scanned.",
	}, []string{"language"})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "factory_scan_seconds",
		Help:    "Time spent scanning a source file.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	ScanWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "factory_scan_warnings_total",
		Help: "Total number of source files skipped due to parse failures.",
	})

	ServicesDiscovered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "factory_services_discovered",
		Help: "Number of annotated services found by the last scan.",
	})

	ResolutionGaps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "factory_type_resolution_gaps_total",
		Help: "Total number of composite types that degraded to opaque.",
	})

	ModulesGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "factory_modules_generated_total",
		Help: "Total number of server modules rendered, by protocol.",
	}, []string{"protocol"})

	BindingErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "factory_binding_errors_total",
		Help: "Total number of tool definitions rejected by binding validation.",
	})

	CollisionsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "factory_merge_collisions_total",
		Help: "Total number of name collisions detected during registry merges.",
	})
)
