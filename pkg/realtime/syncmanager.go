package realtime

import (
	"context"
	"errors"
	"sync"
	"time"
)

// SyncState is the connection health of a sync manager.
type SyncState string

const (
	StateConnecting   SyncState = "connecting"
	StateConnected    SyncState = "connected"
	StateDisconnected SyncState = "disconnected"
)

const (
	defaultConnectedPoll    = 30 * time.Second
	defaultDisconnectedPoll = 5 * time.Second
)

// SyncManagerConfig configures a SyncManager.
type SyncManagerConfig struct {
	// Fetch pulls authoritative state from the server. Its error result
	// drives the connected/disconnected transitions.
	Fetch func(ctx context.Context) error
	// OnState is invoked on every state transition. Optional.
	OnState func(SyncState)
	// Poll cadences. Zero values take the defaults.
	ConnectedInterval    time.Duration
	DisconnectedInterval time.Duration
}

// SyncManager keeps a client converged with the server. It polls on a
// slow cadence while healthy and a fast one while broken, and a push
// hint short-circuits the wait with an immediate fetch. Correctness
// never depends on push delivery: the poll alone reaches the same state.
type SyncManager struct {
	cfg    SyncManagerConfig
	hints  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	mu    sync.RWMutex
	state SyncState
}

// NewSyncManager starts the sync loop with an immediate first fetch.
func NewSyncManager(cfg SyncManagerConfig) (*SyncManager, error) {
	if cfg.Fetch == nil {
		return nil, errors.New("sync manager requires a fetch function")
	}
	if cfg.ConnectedInterval <= 0 {
		cfg.ConnectedInterval = defaultConnectedPoll
	}
	if cfg.DisconnectedInterval <= 0 {
		cfg.DisconnectedInterval = defaultDisconnectedPoll
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &SyncManager{
		cfg:    cfg,
		hints:  make(chan struct{}, 1),
		cancel: cancel,
		done:   make(chan struct{}),
		state:  StateConnecting,
	}
	go m.run(ctx)
	return m, nil
}

// State returns the current connection state.
func (m *SyncManager) State() SyncState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Hint requests an immediate fetch, typically on a pushed change event.
// Hints coalesce: many hints before the fetch runs cost one fetch.
func (m *SyncManager) Hint() {
	select {
	case m.hints <- struct{}{}:
	default:
	}
}

// Close stops the sync loop and waits for it to exit.
func (m *SyncManager) Close() {
	m.cancel()
	<-m.done
}

func (m *SyncManager) run(ctx context.Context) {
	defer close(m.done)
	// The constructor seeds Connecting before this goroutine starts, so
	// setState would see no transition; announce the first state directly.
	if m.cfg.OnState != nil {
		m.cfg.OnState(StateConnecting)
	}
	m.fetchOnce(ctx)

	timer := time.NewTimer(m.interval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.hints:
		case <-timer.C:
		}
		// A fetch that follows a failure is a reconnect attempt.
		if m.State() == StateDisconnected {
			m.setState(StateConnecting)
		}
		m.fetchOnce(ctx)
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.interval())
	}
}

func (m *SyncManager) fetchOnce(ctx context.Context) {
	if err := m.cfg.Fetch(ctx); err != nil {
		if ctx.Err() == nil {
			m.setState(StateDisconnected)
		}
		return
	}
	m.setState(StateConnected)
}

func (m *SyncManager) interval() time.Duration {
	if m.State() == StateConnected {
		return m.cfg.ConnectedInterval
	}
	return m.cfg.DisconnectedInterval
}

func (m *SyncManager) setState(next SyncState) {
	m.mu.Lock()
	prev := m.state
	m.state = next
	m.mu.Unlock()
	if prev != next && m.cfg.OnState != nil {
		m.cfg.OnState(next)
	}
}
