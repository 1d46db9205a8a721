package client

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// Snapshot is a read-only view of the authentication state
type Snapshot struct {
	State core.State
	User  *core.User
}

// Authenticated reports whether the snapshot holds a usable session
func (s Snapshot) Authenticated() bool {
	return s.State == core.StateAuthenticated || s.State == core.StateRefreshing
}

// Listener is called after every state change
type Listener func(Snapshot)

type subscription struct {
	id int
	fn Listener
}

// Projection is the observable auth state. Only the authenticator and the
// executor in this package move it; everybody else reads or subscribes.
type Projection struct {
	mu        sync.Mutex
	current   Snapshot
	listeners []subscription
	nextID    int

	// login is the sequence number of the login owning authenticating, zero when none does
	login    uint64
	loginSeq uint64

	publisher ports.StatePublisher
	logger    *zap.Logger
}

// NewProjection creates an unauthenticated projection. publisher may be nil.
func NewProjection(publisher ports.StatePublisher, logger *zap.Logger) *Projection {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projection{
		current:   Snapshot{State: core.StateUnauthenticated},
		publisher: publisher,
		logger:    logger.Named("projection"),
	}
}

// Snapshot returns the current state and user
func (p *Projection) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	return copySnapshot(p.current)
}

// State returns the current state
func (p *Projection) State() core.State {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.current.State
}

// Subscribe registers a listener and returns the function removing it.
// Listeners run synchronously on the goroutine that changed the state.
func (p *Projection) Subscribe(listener Listener) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	id := p.nextID
	p.listeners = append(p.listeners, subscription{id: id, fn: listener})

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()

			for i, s := range p.listeners {
				if s.id == id {
					p.listeners = append(p.listeners[:i:i], p.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// beginLogin moves to authenticating unless a login is already running.
// The returned sequence number identifies the login in finishLogin and abortLogin.
func (p *Projection) beginLogin() (uint64, bool) {
	var seq uint64
	ok := p.update(func(cur Snapshot) (Snapshot, bool) {
		if cur.State == core.StateAuthenticating {
			return cur, false
		}
		p.loginSeq++
		p.login = p.loginSeq
		seq = p.login
		return Snapshot{State: core.StateAuthenticating, User: cur.User}, true
	})
	return seq, ok
}

// finishLogin completes login seq. It fails when a logout intervened.
func (p *Projection) finishLogin(seq uint64, user core.User) bool {
	return p.update(func(cur Snapshot) (Snapshot, bool) {
		if !p.ownsLogin(cur, seq) {
			return cur, false
		}
		p.login = 0
		return Snapshot{State: core.StateAuthenticated, User: &user}, true
	})
}

// abortLogin leaves authenticating for whatever the store still holds.
// A login superseded by a logout leaves the state alone.
func (p *Projection) abortLogin(seq uint64, rec core.Record, ok bool) {
	p.update(func(cur Snapshot) (Snapshot, bool) {
		if !p.ownsLogin(cur, seq) {
			return cur, false
		}
		p.login = 0
		if ok {
			return Snapshot{State: core.StateAuthenticated, User: &rec.User}, true
		}
		return Snapshot{State: core.StateUnauthenticated}, true
	})
}

// ownsLogin must be called under p.mu
func (p *Projection) ownsLogin(cur Snapshot, seq uint64) bool {
	return cur.State == core.StateAuthenticating && seq != 0 && p.login == seq
}

func (p *Projection) beginRefresh() {
	p.update(func(cur Snapshot) (Snapshot, bool) {
		if cur.State != core.StateAuthenticated {
			return cur, false
		}
		return Snapshot{State: core.StateRefreshing, User: cur.User}, true
	})
}

func (p *Projection) endRefresh() {
	p.update(func(cur Snapshot) (Snapshot, bool) {
		if cur.State != core.StateRefreshing {
			return cur, false
		}
		return Snapshot{State: core.StateAuthenticated, User: cur.User}, true
	})
}

// restore marks a persisted session as authenticated
func (p *Projection) restore(user core.User) {
	p.update(func(cur Snapshot) (Snapshot, bool) {
		if cur.State != core.StateUnauthenticated {
			return cur, false
		}
		return Snapshot{State: core.StateAuthenticated, User: &user}, true
	})
}

// reset drops to unauthenticated from any state and disowns a running login
func (p *Projection) reset() {
	p.update(func(cur Snapshot) (Snapshot, bool) {
		p.login = 0
		if cur.State == core.StateUnauthenticated && cur.User == nil {
			return cur, false
		}
		return Snapshot{State: core.StateUnauthenticated}, true
	})
}

// expire ends an established session. A login that is running is not touched.
func (p *Projection) expire() {
	p.update(func(cur Snapshot) (Snapshot, bool) {
		if cur.State != core.StateAuthenticated && cur.State != core.StateRefreshing {
			return cur, false
		}
		return Snapshot{State: core.StateUnauthenticated}, true
	})
}

// update applies fn under p.mu and notifies outside of it
func (p *Projection) update(fn func(cur Snapshot) (Snapshot, bool)) bool {
	p.mu.Lock()
	prev := p.current
	next, changed := fn(prev)
	if !changed {
		p.mu.Unlock()
		return false
	}
	p.current = next

	listeners := make([]Listener, 0, len(p.listeners))
	for _, s := range p.listeners {
		listeners = append(listeners, s.fn)
	}
	p.mu.Unlock()

	snap := copySnapshot(next)
	for _, l := range listeners {
		l(snap)
	}

	if prev.State != next.State {
		p.publish(prev, next)
	}
	return true
}

func (p *Projection) publish(prev, next Snapshot) {
	if p.publisher == nil {
		return
	}

	change := core.StateChange{From: prev.State, To: next.State}
	switch {
	case next.User != nil:
		change.Address = next.User.Address
	case prev.User != nil:
		change.Address = prev.User.Address
	}

	if err := p.publisher.PublishStateChanged(context.Background(), change); err != nil {
		p.logger.Warn("failed to publish state change",
			zap.Stringer("from", change.From),
			zap.Stringer("to", change.To),
			zap.Error(err))
	}
}

func copySnapshot(s Snapshot) Snapshot {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}

// Restore marks projection authenticated when creds holds a readable session
func Restore(ctx context.Context, creds *CredentialStore, projection *Projection) (core.User, bool) {
	rec, ok := creds.Read(ctx)
	if !ok {
		return core.User{}, false
	}
	projection.restore(rec.User)
	return rec.User, true
}
