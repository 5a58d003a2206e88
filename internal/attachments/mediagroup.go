package attachments

import (
	"sync"
	"time"
)

// Update is the subset of a Telegram update this collector cares about:
// enough to know whether it belongs to an album and, if so, which one.
type Update struct {
	MediaGroupID string
	Payload      any
}

// MediaGroupCollector buffers album (media-group) updates behind a
// sliding-window timer so that all items of an album can be processed
// together once Telegram stops sending more of them. Ported from
// claude-coder's bot/attachments.py:MediaGroupCollector.
type MediaGroupCollector struct {
	timeout time.Duration

	mu      sync.Mutex
	pending map[string][]Update
	timers  map[string]*time.Timer
	ready   map[string][]Update
}

// NewMediaGroupCollector builds a collector with the given sliding-window
// timeout.
func NewMediaGroupCollector(timeout time.Duration) *MediaGroupCollector {
	return &MediaGroupCollector{
		timeout: timeout,
		pending: make(map[string][]Update),
		timers:  make(map[string]*time.Timer),
		ready:   make(map[string][]Update),
	}
}

// Add records update. If it doesn't belong to a media group, it is
// immediately ready and returned as a single-item batch. Otherwise it is
// buffered and nil is returned; call PopReady(groupID) once the timeout has
// elapsed to retrieve the full batch.
func (c *MediaGroupCollector) Add(u Update) []Update {
	if u.MediaGroupID == "" {
		return []Update{u}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	groupID := u.MediaGroupID
	c.pending[groupID] = append(c.pending[groupID], u)

	if t, ok := c.timers[groupID]; ok {
		t.Stop()
	}
	c.timers[groupID] = time.AfterFunc(c.timeout, func() {
		c.fireTimeout(groupID)
	})

	return nil
}

func (c *MediaGroupCollector) fireTimeout(groupID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch, ok := c.pending[groupID]
	if !ok {
		return
	}
	delete(c.pending, groupID)
	delete(c.timers, groupID)
	c.ready[groupID] = batch
}

// PopReady returns and clears the buffered batch for groupID, if the
// timeout has already fired. Returns nil, false if not yet ready.
func (c *MediaGroupCollector) PopReady(groupID string) ([]Update, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	batch, ok := c.ready[groupID]
	if !ok {
		return nil, false
	}
	delete(c.ready, groupID)
	return batch, true
}
