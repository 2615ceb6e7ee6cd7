package poller

import (
	"sync"
	"time"
)

// Components tracked by the poller.
const (
	ComponentStore   = "store"
	ComponentPublish = "publish"
)

// HealthStatus represents the health of a component.
type HealthStatus struct {
	Healthy     bool      `json:"healthy"`
	LastCheck   time.Time `json:"last_check"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Message     string    `json:"message"`
}

// Health tracks the health of the poller's components. It is safe for
// concurrent use by the poll loop and the web handlers.
type Health struct {
	mu         sync.RWMutex
	components map[string]HealthStatus
	lastTick   time.Time
}

// NewHealth creates a new health tracker.
func NewHealth() *Health {
	return &Health{
		components: make(map[string]HealthStatus),
	}
}

// SetHealthy marks a component as healthy.
func (h *Health) SetHealthy(component, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	h.components[component] = HealthStatus{
		Healthy:     true,
		LastCheck:   now,
		LastSuccess: now,
		Message:     message,
	}
}

// SetUnhealthy marks a component as unhealthy, keeping its last success time.
func (h *Health) SetUnhealthy(component string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := h.components[component]
	status.Healthy = false
	status.LastCheck = time.Now()
	status.LastError = err.Error()
	status.Message = err.Error()
	h.components[component] = status
}

// MarkTick records when the last poll cycle finished.
func (h *Health) MarkTick(at time.Time) {
	h.mu.Lock()
	h.lastTick = at
	h.mu.Unlock()
}

// LastTick returns when the last poll cycle finished.
func (h *Health) LastTick() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastTick
}

// GetStatus returns the status of a component, or nil if it was never set.
func (h *Health) GetStatus(component string) *HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status, ok := h.components[component]
	if !ok {
		return nil
	}
	return &status
}

// GetAllStatuses returns a copy of all component statuses.
func (h *Health) GetAllStatuses() map[string]HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	result := make(map[string]HealthStatus, len(h.components))
	for name, status := range h.components {
		result[name] = status
	}
	return result
}

// IsOverallHealthy returns true if all components are healthy.
func (h *Health) IsOverallHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, status := range h.components {
		if !status.Healthy {
			return false
		}
	}
	return true
}
