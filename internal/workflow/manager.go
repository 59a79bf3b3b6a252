package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vignette/internal/config"
	"vignette/internal/logging"
	"vignette/internal/notifications"
	"vignette/internal/queue"
	"vignette/internal/stage"
)

// StageSet bundles the concrete pipeline handlers the manager orchestrates.
type StageSet struct {
	Transcriber stage.Handler
	Analyzer    stage.Handler
	Generator   stage.Handler
	Composer    stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	doneStatus       queue.Status
}

// Manager coordinates queue processing using the registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	pollInterval time.Duration
	heartbeat    *HeartbeatMonitor
	notifier     notifications.Service

	stages       []pipelineStage
	stageByStart map[queue.Status]pipelineStage
	startOrder   []queue.Status

	slots chan struct{}
	wake  chan struct{}

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job
}

// NewManager constructs a workflow manager over the given stage handlers.
func NewManager(cfg *config.Config, store *queue.Store, stages StageSet, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(logging.String(logging.FieldComponent, "workflow-manager"))

	maxJobs := cfg.Workflow.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 1
	}

	m := &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		notifier: notifications.NewService(cfg),
		slots:    make(chan struct{}, maxJobs),
		wake:     make(chan struct{}, 1),
	}
	m.registerStages(stages)
	return m
}

// signalWake nudges the poll loop so a job that just changed status is
// picked up without waiting out the poll interval.
func (m *Manager) signalWake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) registerStages(stages StageSet) {
	ordered := []pipelineStage{
		{name: "transcribing", handler: stages.Transcriber, startStatus: queue.StatusUploaded, processingStatus: queue.StatusTranscribing, doneStatus: queue.StatusTranscribed},
		{name: "analyzing", handler: stages.Analyzer, startStatus: queue.StatusTranscribed, processingStatus: queue.StatusAnalyzing, doneStatus: queue.StatusAnalyzed},
		{name: "generating", handler: stages.Generator, startStatus: queue.StatusAnalyzed, processingStatus: queue.StatusGenerating, doneStatus: queue.StatusGenerated},
		{name: "composing", handler: stages.Composer, startStatus: queue.StatusGenerated, processingStatus: queue.StatusComposing, doneStatus: queue.StatusCompleted},
	}

	m.stageByStart = make(map[queue.Status]pipelineStage, len(ordered))
	for _, stg := range ordered {
		if stg.handler == nil {
			continue
		}
		m.stages = append(m.stages, stg)
		m.stageByStart[stg.startStatus] = stg
		m.startOrder = append(m.startOrder, stg.startStatus)
	}
}
