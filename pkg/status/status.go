// Package status tracks long-running capadapt operations such as backup runs
package status

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/capadapt/capadapt/pkg/errors"
	"github.com/capadapt/capadapt/pkg/health"
)

// OperationStatus represents the status of a tracked operation
type OperationStatus int

const (
	// StatusInProgress indicates the operation is currently executing
	StatusInProgress OperationStatus = iota

	// StatusCompleted indicates the operation completed successfully
	StatusCompleted

	// StatusFailed indicates the operation failed
	StatusFailed

	// StatusCanceled indicates the operation was canceled
	StatusCanceled
)

// String returns the string representation of an operation status
func (s OperationStatus) String() string {
	switch s {
	case StatusInProgress:
		return "in_progress"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name
func (s OperationStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Operation is a snapshot of a tracked operation
type Operation struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Target    string                 `json:"target"`
	Status    OperationStatus        `json:"status"`
	Phase     string                 `json:"phase,omitempty"`
	StartTime time.Time              `json:"start_time"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Error     *errors.CapAdaptError  `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Duration returns how long the operation ran, or has been running
func (o *Operation) Duration(now time.Time) time.Duration {
	if o.EndTime != nil {
		return o.EndTime.Sub(o.StartTime)
	}
	return now.Sub(o.StartTime)
}

func (o *Operation) copy() *Operation {
	cp := *o
	if o.EndTime != nil {
		end := *o.EndTime
		cp.EndTime = &end
	}
	if o.Metadata != nil {
		cp.Metadata = make(map[string]interface{}, len(o.Metadata))
		for k, v := range o.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

type active struct {
	op     *Operation
	cancel context.CancelFunc
}

// TrackerConfig configures operation tracking behavior
type TrackerConfig struct {
	MaxHistorySize int             `yaml:"max_history_size"`
	HealthTracker  *health.Tracker `yaml:"-"`
}

// DefaultTrackerConfig returns default configuration
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxHistorySize: 100,
	}
}

// Tracker tracks active operations and keeps a bounded history of finished ones
type Tracker struct {
	mu            sync.RWMutex
	operations    map[string]*active
	history       []*Operation
	maxHistory    int
	healthTracker *health.Tracker
	now           func() time.Time
}

// NewTracker creates a new operation tracker
func NewTracker(config TrackerConfig) *Tracker {
	if config.MaxHistorySize <= 0 {
		config.MaxHistorySize = DefaultTrackerConfig().MaxHistorySize
	}
	return &Tracker{
		operations:    make(map[string]*active),
		maxHistory:    config.MaxHistorySize,
		healthTracker: config.HealthTracker,
		now:           time.Now,
	}
}

// StartOperation begins tracking an operation of opType against target. The
// returned context is canceled when the operation finishes or is canceled.
func (t *Tracker) StartOperation(ctx context.Context, opType, target string, metadata map[string]interface{}) (*Operation, context.Context) {
	opCtx, cancel := context.WithCancel(ctx)
	op := &Operation{
		ID:        uuid.NewString(),
		Type:      opType,
		Target:    target,
		Status:    StatusInProgress,
		StartTime: t.now(),
		Metadata:  metadata,
	}
	op = op.copy()

	t.mu.Lock()
	t.operations[op.ID] = &active{op: op, cancel: cancel}
	t.mu.Unlock()

	return op.copy(), opCtx
}

// SetPhase records the current phase of an active operation
func (t *Tracker) SetPhase(opID, phase string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.operations[opID]
	if !ok {
		return notFound(opID)
	}
	a.op.Phase = phase
	return nil
}

// CompleteOperation marks an operation as completed and merges metadata into it
func (t *Tracker) CompleteOperation(opID string, metadata map[string]interface{}) error {
	return t.finish(opID, StatusCompleted, nil, metadata)
}

// FailOperation marks an operation as failed. A context.Canceled error marks it
// canceled instead.
func (t *Tracker) FailOperation(opID string, err error) error {
	if stderrors.Is(err, context.Canceled) {
		return t.finish(opID, StatusCanceled, nil, nil)
	}
	return t.finish(opID, StatusFailed, asCapAdaptError(err), nil)
}

// CancelOperation cancels an active operation's context and marks it canceled
func (t *Tracker) CancelOperation(opID string) error {
	return t.finish(opID, StatusCanceled, nil, nil)
}

func (t *Tracker) finish(opID string, status OperationStatus, cause *errors.CapAdaptError, metadata map[string]interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.operations[opID]
	if !ok {
		return notFound(opID)
	}
	delete(t.operations, opID)
	a.cancel()

	end := t.now()
	a.op.Status = status
	a.op.EndTime = &end
	a.op.Error = cause
	if len(metadata) > 0 && a.op.Metadata == nil {
		a.op.Metadata = make(map[string]interface{}, len(metadata))
	}
	for k, v := range metadata {
		a.op.Metadata[k] = v
	}

	// newest first
	t.history = append([]*Operation{a.op}, t.history...)
	if len(t.history) > t.maxHistory {
		t.history = t.history[:t.maxHistory]
	}
	return nil
}

// GetOperation returns an active or finished operation by ID
func (t *Tracker) GetOperation(opID string) (*Operation, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if a, ok := t.operations[opID]; ok {
		return a.op.copy(), nil
	}
	for _, op := range t.history {
		if op.ID == opID {
			return op.copy(), nil
		}
	}
	return nil, notFound(opID)
}

// GetAllOperations returns the active operations, oldest first
func (t *Tracker) GetAllOperations() []*Operation {
	t.mu.RLock()
	ops := make([]*Operation, 0, len(t.operations))
	for _, a := range t.operations {
		ops = append(ops, a.op.copy())
	}
	t.mu.RUnlock()

	sort.Slice(ops, func(i, j int) bool {
		return ops[i].StartTime.Before(ops[j].StartTime)
	})
	return ops
}

// GetHistory returns up to limit finished operations, newest first. A limit of 0
// returns the whole history.
func (t *Tracker) GetHistory(limit int) []*Operation {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if limit <= 0 || limit > len(t.history) {
		limit = len(t.history)
	}
	out := make([]*Operation, limit)
	for i := range out {
		out[i] = t.history[i].copy()
	}
	return out
}

// SystemStatus represents the overall system status
type SystemStatus struct {
	Timestamp        time.Time      `json:"timestamp"`
	ActiveOps        int            `json:"active_operations"`
	OperationsByType map[string]int `json:"operations_by_type"`
	RecentFailures   int            `json:"recent_failures"`
	HealthState      string         `json:"health_state,omitempty"`
	Components       []string       `json:"components,omitempty"`
}

// GetSystemStatus summarizes active operations, recent failures and, when a
// health tracker is configured, overall health
func (t *Tracker) GetSystemStatus() *SystemStatus {
	t.mu.RLock()
	status := &SystemStatus{
		Timestamp:        t.now(),
		ActiveOps:        len(t.operations),
		OperationsByType: make(map[string]int),
	}
	for _, a := range t.operations {
		status.OperationsByType[a.op.Type]++
	}
	for _, op := range t.history {
		if op.Status == StatusFailed {
			status.RecentFailures++
		}
	}
	t.mu.RUnlock()

	if t.healthTracker != nil {
		status.HealthState = t.healthTracker.GetOverallHealth().String()
		status.Components = t.healthTracker.Components()
	}
	return status
}

func asCapAdaptError(err error) *errors.CapAdaptError {
	if err == nil {
		return errors.NewError(errors.ErrCodeOperationFailed, "operation failed")
	}
	var capErr *errors.CapAdaptError
	if stderrors.As(err, &capErr) {
		return capErr
	}
	return errors.NewError(errors.ErrCodeOperationFailed, err.Error())
}

func notFound(opID string) error {
	return errors.NewError(errors.ErrCodeOperationNotFound, "operation not found").
		WithComponent("status").
		WithContext("operation_id", opID)
}
