package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики bridge-клиента.
var (
	// BridgeRequests — RPC-вызовы по методу и исходу (ok, app_error, conn_error).
	BridgeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentfactory_bridge_requests_total",
		Help: "RPC calls issued to the storage bridge by method and outcome",
	}, []string{"method", "outcome"})

	// BridgeFailovers — отказы peer'ов, после которых вызов ушёл на следующий peer.
	BridgeFailovers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentfactory_bridge_failovers_total",
		Help: "Peer transport failures that triggered failover",
	}, []string{"endpoint"})
)

// Метрики кэша.
var (
	// CacheOperations — операции кэша по типу и результату (hit, miss, ok, error).
	CacheOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentfactory_cache_operations_total",
		Help: "Blob cache operations by op and result",
	}, []string{"op", "result"})
)

// Метрики pipeline.
var (
	// PipelineSteps — выполненные шаги по роли и статусу.
	PipelineSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentfactory_pipeline_steps_total",
		Help: "Pipeline steps executed by worker role and status",
	}, []string{"role", "status"})

	// PipelineStepDuration — длительность шага pipeline.
	PipelineStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentfactory_pipeline_step_duration_seconds",
		Help:    "Wall time of a single pipeline step",
		Buckets: prometheus.DefBuckets,
	}, []string{"role"})
)
