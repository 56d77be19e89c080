package convo

import (
	"sync"
	"time"
)

// autosaveDebounce coalesces save bursts during streaming.
const autosaveDebounce = 500 * time.Millisecond

// Autosaver persists conversation snapshots on a debounce timer owned
// by a dedicated goroutine. Failures are reported through onError and
// never touch the in-memory log.
type Autosaver struct {
	store    *Store
	dir      string
	debounce time.Duration
	onError  func(error)
	onSaved  func(*Conversation)

	mu     sync.Mutex
	timer  *time.Timer
	closed bool
	wg     sync.WaitGroup
}

// NewAutosaver wires an autosaver to the store's append hook. onError
// and onSaved may be nil.
func NewAutosaver(store *Store, dir string, onError func(error), onSaved func(*Conversation)) *Autosaver {
	a := &Autosaver{
		store:    store,
		dir:      dir,
		debounce: autosaveDebounce,
		onError:  onError,
		onSaved:  onSaved,
	}
	store.SetAppendHook(a.Trigger)
	return a
}

// SetDebounce overrides the debounce interval (tests).
func (a *Autosaver) SetDebounce(d time.Duration) {
	a.mu.Lock()
	a.debounce = d
	a.mu.Unlock()
}

// Trigger schedules a save after the debounce window, resetting the
// window if one is already pending.
func (a *Autosaver) Trigger() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if a.timer != nil && a.timer.Stop() {
		// The pending save never runs; release its slot.
		a.wg.Done()
	}
	a.wg.Add(1)
	a.timer = time.AfterFunc(a.debounce, func() {
		defer a.wg.Done()
		a.save()
	})
}

// Flush saves immediately, cancelling any pending timer. Used on quit.
func (a *Autosaver) Flush() {
	a.mu.Lock()
	if a.timer != nil && a.timer.Stop() {
		a.wg.Done()
	}
	a.timer = nil
	a.mu.Unlock()
	a.save()
}

// Close flushes and stops accepting triggers.
func (a *Autosaver) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.timer != nil && a.timer.Stop() {
		a.wg.Done()
	}
	a.timer = nil
	a.mu.Unlock()

	a.wg.Wait()
	a.save()
}

func (a *Autosaver) save() {
	snapshot := a.store.Snapshot()
	if len(snapshot.Messages) == 0 {
		return
	}
	if err := Save(a.dir, snapshot); err != nil {
		if a.onError != nil {
			a.onError(err)
		}
		return
	}
	if a.onSaved != nil {
		a.onSaved(snapshot)
	}
}
