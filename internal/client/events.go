package client

import (
	"log/slog"
	"sync"

	"github.com/geocoder89/kidshub/internal/provider"
)

type delivery struct {
	targets []uint64
	event   provider.AuthEvent
	session *provider.Session
}

// dispatcher delivers auth events to subscribers on its own goroutine, in
// the order they were emitted. Emitters never block on handlers.
type dispatcher struct {
	log *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	subs    map[uint64]provider.StateChangeHandler
	next    uint64
	pending []delivery
	closed  bool
}

func newDispatcher(log *slog.Logger) *dispatcher {
	d := &dispatcher{
		log:  log,
		subs: make(map[uint64]provider.StateChangeHandler),
	}
	d.cond = sync.NewCond(&d.mu)
	go d.run()
	return d
}

// subscribe registers h and queues an INITIAL_SESSION delivery for it alone.
func (d *dispatcher) subscribe(h provider.StateChangeHandler, initial *provider.Session) func() {
	d.mu.Lock()
	d.next++
	id := d.next
	d.subs[id] = h
	d.pending = append(d.pending, delivery{
		targets: []uint64{id},
		event:   provider.EventInitialSession,
		session: copySession(initial),
	})
	d.mu.Unlock()
	d.cond.Signal()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subs, id)
			d.mu.Unlock()
		})
	}
}

func (d *dispatcher) emit(event provider.AuthEvent, s *provider.Session) {
	d.mu.Lock()
	if d.closed || len(d.subs) == 0 {
		d.mu.Unlock()
		return
	}
	targets := make([]uint64, 0, len(d.subs))
	for id := range d.subs {
		targets = append(targets, id)
	}
	d.pending = append(d.pending, delivery{targets: targets, event: event, session: copySession(s)})
	d.mu.Unlock()
	d.cond.Signal()
}

func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
}

func (d *dispatcher) run() {
	for {
		d.mu.Lock()
		for len(d.pending) == 0 && !d.closed {
			d.cond.Wait()
		}
		if d.closed {
			d.mu.Unlock()
			return
		}
		item := d.pending[0]
		d.pending = d.pending[1:]

		handlers := make([]provider.StateChangeHandler, 0, len(item.targets))
		for _, id := range item.targets {
			if h, ok := d.subs[id]; ok {
				handlers = append(handlers, h)
			}
		}
		d.mu.Unlock()

		for _, h := range handlers {
			d.deliver(h, item)
		}
	}
}

func (d *dispatcher) deliver(h provider.StateChangeHandler, item delivery) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("auth event handler panicked", "event", item.event, "panic", r)
		}
	}()
	h(item.event, copySession(item.session))
}

func copySession(s *provider.Session) *provider.Session {
	if s == nil {
		return nil
	}
	cp := *s
	if s.User.UserMetadata != nil {
		cp.User.UserMetadata = make(map[string]any, len(s.User.UserMetadata))
		for k, v := range s.User.UserMetadata {
			cp.User.UserMetadata[k] = v
		}
	}
	return &cp
}
