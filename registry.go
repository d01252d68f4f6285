package mmec_fab

import (
	"fmt"
	"sync"
	"time"
)

// controllers is the process wide registry used by NewRobotClient.
var controllers = NewControllerRegistry()

// ControllerEntry records who holds a controller connection.
type ControllerEntry struct {
	Owner    string
	Acquired time.Time
}

// ControllerRegistry makes sure a controller (a rosbridge URL plus robot namespace) is
// driven by at most one RobotClient at a time. Two clients interleaving instructions on
// the same controller would make both choreographies meaningless.
type ControllerRegistry struct {
	entries map[string]ControllerEntry // controller key -> entry
	mu      sync.Mutex
}

func NewControllerRegistry() *ControllerRegistry {
	return &ControllerRegistry{
		entries: make(map[string]ControllerEntry),
	}
}

// Acquire claims key for owner. It fails if the key is already held.
func (r *ControllerRegistry) Acquire(key, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[key]; exists {
		return fmt.Errorf("conflict: controller %s already in use by %s since %s",
			key, entry.Owner, entry.Acquired.Format(time.RFC3339))
	}
	r.entries[key] = ControllerEntry{Owner: owner, Acquired: time.Now()}
	return nil
}

// Release frees key. Releasing a key that is not held does nothing.
func (r *ControllerRegistry) Release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Status reports who holds key.
func (r *ControllerRegistry) Status(key string) (ControllerEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[key]
	return entry, ok
}
