package progress

import "sync"

// Hub is the registry of live progress channels, keyed by job ID. Each job
// is addressed by exactly one channel instance, so all participants for one
// job reach the same fan-out point. Channels are removed once their job
// reaches a terminal stage.
type Hub struct {
	mu       sync.Mutex
	channels map[string]*Channel
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		channels: make(map[string]*Channel),
	}
}

// GetOrCreate returns the channel for a job, creating it if needed
func (h *Hub) GetOrCreate(jobID string) *Channel {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[jobID]
	if !ok {
		ch = NewChannel(jobID)
		h.channels[jobID] = ch
	}
	return ch
}

// Get returns the channel for a job if one exists
func (h *Hub) Get(jobID string) (*Channel, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[jobID]
	return ch, ok
}

// Remove drops the channel for a job from the registry. The channel itself
// should be closed first so attached listeners are released.
func (h *Hub) Remove(jobID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.channels, jobID)
}

// Len returns the number of live channels
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}
