package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"csvmail/pkg/contracts"
)

// QueueState reports the validation queue. operations.JobQueue satisfies it.
type QueueState interface {
	IsRunning() bool
	GetQueueStats() map[string]interface{}
}

// ClientCounter reports connected websocket clients.
type ClientCounter interface {
	ClientCount() int
}

// Pinger is implemented by artifact backends with a remote dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthService provides health check functionality
type HealthService struct {
	version   string
	store     interface{}
	queue     QueueState
	hub       ClientCounter
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewHealthService creates a health service. store is checked with Ping
// when it implements Pinger; queue and hub may be nil.
func NewHealthService(version string, store interface{}, queue QueueState, hub ClientCounter, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		store:     store,
		queue:     queue,
		hub:       hub,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// HealthCheck returns overall health status
func (hs *HealthService) HealthCheck(ctx context.Context) HealthStatus {
	status := hs.ReadinessCheck(ctx)
	if status.Status == "ready" {
		status.Status = "ok"
	} else {
		status.Status = "degraded"
	}
	status.Runtime = hs.runtimeInfo()
	return status
}

// ReadinessCheck returns readiness status
func (hs *HealthService) ReadinessCheck(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:    "ready",
		Timestamp: time.Now(),
		Version:   hs.version,
		Services: map[string]interface{}{
			"artifacts":  hs.checkStore(ctx),
			"validation": hs.checkQueue(),
			"websocket":  hs.checkWebSocket(),
		},
	}

	for name, service := range status.Services {
		if sh, ok := service.(ServiceHealth); ok && sh.Status != "ready" {
			hs.logger.WarnContext(ctx, "dependency not ready",
				slog.String("dependency", name),
				slog.String("message", sh.Message))
			status.Status = "not_ready"
		}
	}
	return status
}

// LivenessCheck returns liveness status
func (hs *HealthService) LivenessCheck(ctx context.Context) HealthStatus {
	return HealthStatus{
		Status:    "alive",
		Timestamp: time.Now(),
		Version:   hs.version,
		Runtime:   hs.runtimeInfo(),
	}
}

// Version returns version information
func (hs *HealthService) Version() map[string]interface{} {
	info := contracts.GetVersionInfo(hs.version)
	return map[string]interface{}{
		"version":        info.Version,
		"build_time":     info.BuildTime,
		"git_commit":     info.GitCommit,
		"go_version":     info.GoVersion,
		"os":             info.OS,
		"arch":           info.Architecture,
		"api_version":    info.APIVersion,
		"report_version": info.ReportVersion,
		"uptime":         time.Since(hs.startTime).Seconds(),
		"start_time":     hs.startTime.Format(time.RFC3339),
	}
}

func (hs *HealthService) runtimeInfo() map[string]interface{} {
	return map[string]interface{}{
		"uptime":     time.Since(hs.startTime).Seconds(),
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
	}
}

func (hs *HealthService) checkStore(ctx context.Context) ServiceHealth {
	if hs.store == nil {
		return ServiceHealth{Status: "not_ready", Message: "artifact store not configured"}
	}

	details := map[string]interface{}{}
	if counted, ok := hs.store.(interface{ Len() int }); ok {
		details["artifacts"] = counted.Len()
	}

	if pinger, ok := hs.store.(Pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := pinger.Ping(pingCtx); err != nil {
			return ServiceHealth{Status: "not_ready", Message: err.Error(), Details: details}
		}
	}
	return ServiceHealth{Status: "ready", Details: details}
}

func (hs *HealthService) checkQueue() ServiceHealth {
	if hs.queue == nil {
		return ServiceHealth{Status: "not_ready", Message: "validation queue not configured"}
	}
	if !hs.queue.IsRunning() {
		return ServiceHealth{Status: "not_ready", Message: "validation queue stopped", Details: hs.queue.GetQueueStats()}
	}
	return ServiceHealth{Status: "ready", Details: hs.queue.GetQueueStats()}
}

func (hs *HealthService) checkWebSocket() ServiceHealth {
	if hs.hub == nil {
		return ServiceHealth{Status: "ready", Message: "websocket disabled"}
	}
	return ServiceHealth{
		Status:  "ready",
		Details: map[string]interface{}{"clients": hs.hub.ClientCount()},
	}
}
