// Package runtime runs the live meeting rooms: the per-room critical sections,
// the broadcast of accepted changes, the signaling relay and the background workers.
// Role and phase rules live in the domain packages, not here.
package runtime

import (
	"context"
	"log/slog"
	"orchestra/contract"
	"orchestra/domain/event"
	"orchestra/observability"
	"orchestra/runtime/workers"
	"sync"
	"time"
)

type Config struct {
	BufferSize           int
	SinkTimeout          time.Duration
	MetricInterval       time.Duration
	LowCapacityThreshold int
}

// Orchestrator wires the coordinator to its channels and background workers.
type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	cfg            Config
	supervisor     contract.ISupervisor
	monitoring     *observability.MonitoringManager
	counter        *event.Counter
	delivery       *event.DeliveryHandler
	domainEvents   chan event.DomainEvent
	evictions      chan contract.Eviction
	telemetryChan  chan event.Event
	permanentSinks []namedSink
	registry       *Registry
	coordinator    *Coordinator
}

type namedSink struct {
	name string
	sink contract.EventSink
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, telemetryChan chan event.Event,
	monitoring *observability.MonitoringManager, counter *event.Counter, cfg Config) *Orchestrator {
	domainEvents := make(chan event.DomainEvent, cfg.BufferSize)
	evictions := make(chan contract.Eviction, cfg.BufferSize)
	broadcaster := NewBroadcaster(log, domainEvents, telemetryChan)
	registry := NewRegistry(log, broadcaster, evictions)
	return &Orchestrator{
		log:           log,
		cfg:           cfg,
		supervisor:    supervisor,
		monitoring:    monitoring,
		counter:       counter,
		delivery:      event.NewDeliveryHandler(log, counter),
		domainEvents:  domainEvents,
		evictions:     evictions,
		telemetryChan: telemetryChan,
		registry:      registry,
		coordinator:   NewCoordinator(log, registry, NewRelay(log, registry)),
	}
}

// Add registers a permanent sink, fed with every accepted room event. Must be called before Start.
func (o *Orchestrator) Add(name string, sink contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, namedSink{name: name, sink: sink})
}

func (o *Orchestrator) Coordinator() contract.ICoordinator {
	return o.coordinator
}

// Delivery exposes the per-room dropped frame totals.
func (o *Orchestrator) Delivery() *event.DeliveryHandler {
	return o.delivery
}

// Start registers the background workers and runs them under the supervisor.
// It returns immediately, Stop cancels the workers.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	fanout := workers.NewEventFanout(o.log, o.domainEvents, o.telemetryChan, o.cfg.SinkTimeout)
	for _, s := range o.permanentSinks {
		fanout.Add(s.name, s.sink)
	}
	o.mu.Unlock()

	handlers := []event.Handler{
		event.NewWorkerRestartedAfterPanicHandler(o.log, o.counter),
		event.NewChannelCapacityHandler(o.log, o.cfg.LowCapacityThreshold),
		o.delivery,
	}
	channels := []workers.NamedChannel{
		{Name: "domain_events", Channel: o.domainEvents},
		{Name: "evictions", Channel: o.evictions},
		{Name: "telemetry", Channel: o.telemetryChan},
	}

	o.supervisor.Add(
		fanout,
		workers.NewEvictionWorker(o.log, o.evictions, o.registry),
		workers.NewTelemetryWorker(o.log, o.telemetryChan, handlers),
		workers.NewChannelCapacityWorker(o.log, channels, o.telemetryChan, o.cfg.MetricInterval),
	)
	if o.monitoring != nil {
		o.supervisor.Add(workers.NewHeartbeatWorker(o.log, o.monitoring, o.cfg.MetricInterval))
	}
	go o.supervisor.Run(ctx)
	o.log.Info("Orchestrator started", "permanent_sinks", len(o.permanentSinks))
}

func (o *Orchestrator) Stop() {
	o.supervisor.Stop()
}
