package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/septivank/crm-topology-worker/internal/config"
	"github.com/septivank/crm-topology-worker/internal/crm"
	"github.com/septivank/crm-topology-worker/internal/guard"
	"github.com/septivank/crm-topology-worker/internal/logging"
	"github.com/septivank/crm-topology-worker/internal/metrics"
	"github.com/septivank/crm-topology-worker/internal/mq"
	"github.com/septivank/crm-topology-worker/internal/reconcile"
	"github.com/septivank/crm-topology-worker/internal/topology"
)

// ErrRunInProgress is returned when a run is requested while one is active.
var ErrRunInProgress = errors.New("sync run already in progress")

// Trigger names recorded with each run.
const (
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
	TriggerRequest  = "request"
)

// Reconciler runs one reconciliation pass into an emitter.
type Reconciler interface {
	Run(ctx context.Context, emitter topology.Emitter) (*reconcile.Result, error)
}

// EventPublisher announces published topologies.
type EventPublisher interface {
	PublishTopologyEvent(ctx context.Context, event mq.TopologyEvent, routingKey string) error
}

// SyncRequest is the body of an on-demand sync message. All fields are optional.
type SyncRequest struct {
	RequestID string `json:"request_id"`
	Reason    string `json:"reason"`
}

// SyncService runs synchronization passes end to end
type SyncService struct {
	reconciler Reconciler
	sinks      []topology.Sink
	publisher  EventPublisher
	cfg        *config.Config
	logger     *zap.Logger

	mu         sync.Mutex
	newBackOff func() backoff.BackOff
	now        func() time.Time
}

// NewSyncService creates a new sync service. Sinks receive every finalized
// snapshot in order; the first failure aborts the run.
func NewSyncService(
	reconciler Reconciler,
	sinks []topology.Sink,
	publisher EventPublisher,
	cfg *config.Config,
	logger *zap.Logger,
) *SyncService {
	if cfg.Integration.FindIPv6UsingMikrotik {
		logger.Warn("IPv6 discovery is enabled but not provided by this worker; device IPv6 comes from the CRM only")
	}
	return &SyncService{
		reconciler: reconciler,
		sinks:      sinks,
		publisher:  publisher,
		cfg:        cfg,
		logger:     logger,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		now:        time.Now,
	}
}

// Run executes one synchronization pass
func (s *SyncService) Run(ctx context.Context, trigger string) (*reconcile.Result, error) {
	if !s.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer s.mu.Unlock()

	runID := uuid.New().String()
	runLogger := logging.WithRun(s.logger, runID, trigger)
	runLogger.Info("sync run started")

	start := s.now()
	graph := topology.NewGraph(runID, s.sinks...)
	result, err := s.reconciler.Run(ctx, graph)
	metrics.SyncRunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues(resultLabel(err)).Inc()
		runLogger.Error("sync run failed", zap.Error(err))
		return nil, err
	}

	metrics.SyncRunsTotal.WithLabelValues("success").Inc()
	metrics.NodesEmitted.WithLabelValues(string(topology.KindClient)).Set(float64(result.Clients))
	metrics.NodesEmitted.WithLabelValues(string(topology.KindDevice)).Set(float64(result.Devices))

	runLogger.Info("sync run completed",
		zap.Int("active_customers", result.ActiveCustomers),
		zap.Int("clients", result.Clients),
		zap.Int("devices", result.Devices),
		zap.Int("warnings", len(result.Warnings)),
		zap.Duration("elapsed", time.Since(start)),
	)

	event := mq.TopologyEvent{
		RunID:       runID,
		Trigger:     trigger,
		Clients:     result.Clients,
		Devices:     result.Devices,
		Warnings:    len(result.Warnings),
		PublishedAt: s.now().UTC().Format(time.RFC3339),
	}
	if err := s.publisher.PublishTopologyEvent(ctx, event, s.cfg.RabbitMQ.EventsRoutingKey); err != nil {
		// the snapshot is already stored; consumers will see it on the next event
		runLogger.Error("failed to publish topology event", zap.Error(err))
	}

	return result, nil
}

// RunWithRetry runs a pass and retries transport failures with exponential
// backoff, up to the configured number of retries.
func (s *SyncService) RunWithRetry(ctx context.Context, trigger string) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(s.newBackOff(), uint64(max(s.cfg.Sync.MaxRetries, 0))),
		ctx,
	)

	operation := func() error {
		_, err := s.Run(ctx, trigger)
		if err == nil {
			return nil
		}
		var transportErr *crm.TransportError
		if errors.As(err, &transportErr) {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, wait time.Duration) {
		s.logger.Warn("sync run failed, retrying",
			zap.String("trigger", trigger),
			zap.Error(err),
			zap.Duration("retry_in", wait),
		)
	}

	return backoff.RetryNotify(operation, b, notify)
}

// HandleSyncRequest processes an on-demand sync message from the trigger queue
func (s *SyncService) HandleSyncRequest(ctx context.Context, body []byte) error {
	var req SyncRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return fmt.Errorf("failed to unmarshal sync request: %w", err)
		}
	}

	reqLogger := logging.WithRequestID(s.logger, req.RequestID)
	reqLogger.Info("sync requested", zap.String("reason", req.Reason))

	if s.cfg.Sync.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Sync.RunTimeout)
		defer cancel()
	}

	err := s.RunWithRetry(ctx, TriggerRequest)
	if errors.Is(err, ErrRunInProgress) {
		reqLogger.Info("sync request coalesced into the running pass")
		return nil
	}
	return err
}

func resultLabel(err error) string {
	var (
		transportErr *crm.TransportError
		decodeErr    *crm.DecodeError
		schemaErr    *crm.SchemaError
	)
	switch {
	case errors.As(err, &schemaErr):
		return "schema_error"
	case errors.As(err, &decodeErr):
		return "decode_error"
	case errors.As(err, &transportErr):
		return "transport_error"
	case errors.Is(err, guard.ErrTopologyShrunk):
		return "shrink_rejected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
