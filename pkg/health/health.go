// Package health provides health results and component state tracking for capadapt
package health

import (
	"context"
	stderr "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/capadapt/capadapt/pkg/errors"
)

// Severity grades a single health result
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityError
)

// String returns the string representation of a severity
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the severity by name in JSON and YAML output
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is one finding of a health check
type Result struct {
	Component string                 `json:"component" yaml:"component"`
	Severity  Severity               `json:"severity" yaml:"severity"`
	Message   string                 `json:"message" yaml:"message"`
	Details   map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// Worst returns the highest severity in results, SeverityOK when empty
func Worst(results []Result) Severity {
	worst := SeverityOK
	for _, r := range results {
		if r.Severity > worst {
			worst = r.Severity
		}
	}
	return worst
}

// HealthState represents the overall health state of a component
type HealthState int

const (
	// StateHealthy indicates the component is fully operational
	StateHealthy HealthState = iota

	// StateDegraded indicates the component works with reduced functionality
	StateDegraded

	// StateReadOnly indicates the component can be read but backups cannot be written
	StateReadOnly

	// StateUnavailable indicates the component is not operational
	StateUnavailable
)

// String returns the string representation of a health state
func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateReadOnly:
		return "read-only"
	case StateUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// ComponentHealth tracks the health of a specific component
type ComponentHealth struct {
	Name              string      `json:"name"`
	State             HealthState `json:"state"`
	LastStateChange   time.Time   `json:"last_state_change"`
	LastHealthCheck   time.Time   `json:"last_health_check"`
	ConsecutiveErrors int         `json:"consecutive_errors"`
	LastMessage       string      `json:"last_message,omitempty"`
	LastResults       []Result    `json:"last_results,omitempty"`
}

// StateChangeCallback is called when a component's health state changes
type StateChangeCallback func(component string, oldState, newState HealthState, err error)

// TrackerConfig configures health tracking behavior
type TrackerConfig struct {
	// ErrorThreshold is the number of consecutive errors before marking a component degraded
	ErrorThreshold int `yaml:"error_threshold" json:"error_threshold"`

	// UnavailableThreshold is the number of consecutive errors before marking unavailable
	UnavailableThreshold int `yaml:"unavailable_threshold" json:"unavailable_threshold"`

	// CheckInterval is the interval for periodic health checks
	CheckInterval time.Duration `yaml:"check_interval" json:"check_interval"`
}

// DefaultConfig returns a default tracker configuration
func DefaultConfig() TrackerConfig {
	return TrackerConfig{
		ErrorThreshold:       3,
		UnavailableThreshold: 10,
		CheckInterval:        30 * time.Second,
	}
}

// Tracker folds health results of many components into per-component states
type Tracker struct {
	mu         sync.RWMutex
	components map[string]*ComponentHealth
	config     TrackerConfig
	callbacks  []StateChangeCallback
}

// NewTracker creates a new health tracker
func NewTracker(config TrackerConfig) *Tracker {
	if config.ErrorThreshold <= 0 {
		config.ErrorThreshold = DefaultConfig().ErrorThreshold
	}
	if config.UnavailableThreshold < config.ErrorThreshold {
		config.UnavailableThreshold = config.ErrorThreshold
	}
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}
	return &Tracker{
		components: make(map[string]*ComponentHealth),
		config:     config,
	}
}

// RegisterComponent registers a new component for health tracking
func (t *Tracker) RegisterComponent(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.components[name]; !exists {
		now := time.Now()
		t.components[name] = &ComponentHealth{
			Name:            name,
			State:           StateHealthy,
			LastStateChange: now,
			LastHealthCheck: now,
		}
	}
}

// OnStateChange registers a callback invoked asynchronously on every state change
func (t *Tracker) OnStateChange(cb StateChangeCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callbacks = append(t.callbacks, cb)
}

// RecordResults folds one round of health results into the component state. Errors count
// toward the thresholds, warnings mark the component degraded, and a clean round recovers it.
func (t *Tracker) RecordResults(component string, results []Result) {
	var err error
	if Worst(results) == SeverityError {
		err = errors.NewError(errors.ErrCodeOperationFailed, firstMessage(results, SeverityError)).
			WithComponent(component)
	}
	t.record(component, results, err)
}

// RecordError records an error for a component
func (t *Tracker) RecordError(component string, err error) {
	t.record(component, []Result{{
		Component: component,
		Severity:  SeverityError,
		Message:   errorMessage(err),
	}}, err)
}

// RecordSuccess records a successful check for a component
func (t *Tracker) RecordSuccess(component string) {
	t.record(component, nil, nil)
}

func (t *Tracker) record(component string, results []Result, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	health, exists := t.components[component]
	if !exists {
		return
	}

	oldState := health.State
	health.LastHealthCheck = time.Now()
	health.LastResults = results

	var newState HealthState
	switch worst := Worst(results); {
	case worst == SeverityError:
		health.ConsecutiveErrors++
		health.LastMessage = errorMessage(err)
		switch {
		case health.ConsecutiveErrors >= t.config.UnavailableThreshold:
			newState = StateUnavailable
		case health.ConsecutiveErrors >= t.config.ErrorThreshold:
			if isWriteError(err) {
				newState = StateReadOnly
			} else {
				newState = StateDegraded
			}
		default:
			newState = oldState
		}
	case worst == SeverityWarning:
		health.ConsecutiveErrors = 0
		health.LastMessage = firstMessage(results, SeverityWarning)
		newState = StateDegraded
	default:
		health.ConsecutiveErrors = 0
		health.LastMessage = ""
		newState = StateHealthy
	}

	if newState != oldState {
		health.State = newState
		health.LastStateChange = time.Now()
		for _, cb := range t.callbacks {
			go cb(component, oldState, newState, err)
		}
	}
}

// GetState returns the current health state of a component
func (t *Tracker) GetState(component string) HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if health, exists := t.components[component]; exists {
		return health.State
	}
	return StateUnavailable
}

// GetComponentHealth returns a copy of the health information for a component
func (t *Tracker) GetComponentHealth(component string) (*ComponentHealth, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	health, exists := t.components[component]
	if !exists {
		return nil, fmt.Errorf("component %s not registered", component)
	}
	cp := *health
	return &cp, nil
}

// Components returns the registered component names, sorted
func (t *Tracker) Components() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.components))
	for name := range t.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetOverallHealth returns the worst state across all components
func (t *Tracker) GetOverallHealth() HealthState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	overall := StateHealthy
	for _, health := range t.components {
		if health.State > overall {
			overall = health.State
		}
	}
	return overall
}

// StartHealthChecks runs check for every component on each tick until ctx is done
func (t *Tracker) StartHealthChecks(ctx context.Context, check func(component string) []Result) {
	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.CheckAll(check)
		}
	}
}

// CheckAll runs check once for every registered component
func (t *Tracker) CheckAll(check func(component string) []Result) {
	for _, component := range t.Components() {
		t.RecordResults(component, check(component))
	}
}

// isWriteError checks if an error indicates a write failure while reads may still work
func isWriteError(err error) bool {
	var capErr *errors.CapAdaptError
	if stderr.As(err, &capErr) {
		switch capErr.Code {
		case errors.ErrCodeAccessDenied, errors.ErrCodeStorageWrite:
			return true
		}
	}
	return false
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func firstMessage(results []Result, severity Severity) string {
	for _, r := range results {
		if r.Severity == severity {
			return r.Message
		}
	}
	return ""
}
