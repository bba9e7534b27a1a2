// Package bus implements the process lifecycle coordinator: a set of named
// channels that components publish state transitions on, and an ordered
// subscriber registry that lets unrelated subsystems (metrics, reloaders,
// cleanup daemons) hook those transitions without the core knowing them.
package bus

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// State is the bus lifecycle state.
type State int32

const (
	Stopped State = iota
	Starting
	Started
	Stopping
	Exiting
	Exited
)

// String returns the string representation of the bus state
func (s State) String() string {
	switch s {
	case Stopped:
		return "STOPPED"
	case Starting:
		return "STARTING"
	case Started:
		return "STARTED"
	case Stopping:
		return "STOPPING"
	case Exiting:
		return "EXITING"
	case Exited:
		return "EXITED"
	default:
		return "UNKNOWN"
	}
}

// Channel names a subscription point.
type Channel string

// Well-known lifecycle channels.
const (
	ChStart       Channel = "start"
	ChStop        Channel = "stop"
	ChGraceful    Channel = "graceful"
	ChExit        Channel = "exit"
	ChStartThread Channel = "start_thread"
	ChStopThread  Channel = "stop_thread"
	ChLog         Channel = "log"
	ChMain        Channel = "main"
)

// Callback is a channel subscriber. Publish arguments are passed through
// untyped; a subscriber returning an error does not stop delivery to the
// remaining subscribers.
type Callback func(args ...interface{}) error

// DefaultPriority is the conventional middle priority for subscribers that
// do not care about ordering.
const DefaultPriority = 50

type subscriber struct {
	priority int
	seq      uint64 // registration order, ties broken ascending
	name     string
	cb       Callback
}

// Bus coordinates start/stop/graceful/exit across subsystems. It is an
// explicit object, not process-ambient state: construct one per server (or
// per test) and pass it to everything that publishes or subscribes.
type Bus struct {
	mu      sync.Mutex
	subs    map[Channel][]subscriber
	seq     uint64
	state   atomic.Int32
	stopped bool // a Stop completed since the last Start
	exited  bool // Exit already published

	// Goroutines registered via Go; Block joins them before EXITED.
	wg sync.WaitGroup
}

// New creates a bus in the STOPPED state.
func New() *Bus {
	return &Bus{
		subs:    make(map[Channel][]subscriber),
		stopped: true,
	}
}

// State returns the current lifecycle state.
func (b *Bus) State() State {
	return State(b.state.Load())
}

func (b *Bus) setState(s State) {
	b.state.Store(int32(s))
}

// Subscribe registers cb on a channel. Lower priorities run first; equal
// priorities run in registration order. The name identifies the subscriber
// in aggregate publish errors.
func (b *Bus) Subscribe(channel Channel, name string, priority int, cb Callback) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	subs := append(b.subs[channel], subscriber{
		priority: priority,
		seq:      b.seq,
		name:     name,
		cb:       cb,
	})
	sort.SliceStable(subs, func(i, j int) bool {
		if subs[i].priority != subs[j].priority {
			return subs[i].priority < subs[j].priority
		}
		return subs[i].seq < subs[j].seq
	})
	b.subs[channel] = subs
}

// Unsubscribe removes every subscriber registered under name on a channel.
func (b *Bus) Unsubscribe(channel Channel, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[channel]
	kept := subs[:0]
	for _, s := range subs {
		if s.name != name {
			kept = append(kept, s)
		}
	}
	b.subs[channel] = kept
}

// Publish invokes every subscriber of a channel in priority order. All
// subscribers run even when earlier ones fail; the failures are collected
// into a single *PublishError returned to the caller.
func (b *Bus) Publish(channel Channel, args ...interface{}) error {
	b.mu.Lock()
	subs := make([]subscriber, len(b.subs[channel]))
	copy(subs, b.subs[channel])
	b.mu.Unlock()

	var failures []SubscriberError
	for _, s := range subs {
		if err := b.invoke(s, args); err != nil {
			failures = append(failures, SubscriberError{
				Channel:    channel,
				Subscriber: s.name,
				Err:        err,
			})
		}
	}

	if len(failures) > 0 {
		return &PublishError{Channel: channel, Failures: failures}
	}
	return nil
}

func (b *Bus) invoke(s subscriber, args []interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.cb(args...)
}

// Log publishes a message on the log channel. Failures of log subscribers
// are dropped; there is nowhere left to report them.
func (b *Bus) Log(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	_ = b.Publish(ChLog, msg)
}

// Start publishes start and transitions STOPPED -> STARTING -> STARTED.
// Subscriber failures are returned but do not prevent the STARTED state:
// partially-started subsystems are the caller's to unwind via Stop.
func (b *Bus) Start() error {
	b.mu.Lock()
	b.stopped = false
	b.mu.Unlock()

	b.setState(Starting)
	b.Log("Bus STARTING")
	err := b.Publish(ChStart)
	b.setState(Started)
	b.Log("Bus STARTED")
	return err
}

// Stop publishes stop and transitions through STOPPING to STOPPED. Calling
// Stop again before the next Start is a no-op, so stop subscribers fire
// exactly once per started period.
func (b *Bus) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	b.setState(Stopping)
	b.Log("Bus STOPPING")
	err := b.Publish(ChStop)
	b.setState(Stopped)
	b.Log("Bus STOPPED")
	return err
}

// Graceful publishes graceful without leaving STARTED. Subscribers reload
// configuration or recycle workers while the listening socket stays open.
func (b *Bus) Graceful() error {
	b.Log("Bus graceful")
	return b.Publish(ChGraceful)
}

// Exit stops the bus, publishes exit, and moves to EXITING. Exit is
// idempotent; the exit channel fires at most once per bus.
func (b *Bus) Exit() error {
	b.mu.Lock()
	if b.exited {
		b.mu.Unlock()
		return nil
	}
	b.exited = true
	b.mu.Unlock()

	stopErr := b.Stop()
	b.Log("Bus EXITING")
	exitErr := b.Publish(ChExit)
	b.setState(Exiting)

	if stopErr != nil {
		return stopErr
	}
	return exitErr
}

// Go runs fn on a goroutine the bus tracks; Block waits for every tracked
// goroutine before declaring the process EXITED.
func (b *Bus) Go(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

// Block waits for EXITING, joins all tracked goroutines, and transitions to
// EXITED. It is the last call of a server main.
func (b *Bus) Block(interval time.Duration) {
	b.Wait(interval, "", Exiting, Exited)
	b.wg.Wait()
	b.setState(Exited)
	b.Log("Bus EXITED")
}

// Wait blocks until the bus state is one of states, polling at interval.
// When heartbeat names a channel, a tick is published on it each interval
// so long-running waiters can report progress.
func (b *Bus) Wait(interval time.Duration, heartbeat Channel, states ...State) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		cur := b.State()
		for _, s := range states {
			if cur == s {
				return
			}
		}
		<-ticker.C
		if heartbeat != "" {
			_ = b.Publish(heartbeat)
		}
	}
}

// SubscribeLogger attaches a default log-channel subscriber writing through
// the standard logger.
func (b *Bus) SubscribeLogger() {
	b.Subscribe(ChLog, "stdlog", DefaultPriority, func(args ...interface{}) error {
		if len(args) > 0 {
			log.Printf("[bus] %v", args[0])
		}
		return nil
	})
}

// SubscriberError records one failing subscriber during a publish.
type SubscriberError struct {
	Channel    Channel
	Subscriber string
	Err        error
}

func (e SubscriberError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Channel, e.Subscriber, e.Err)
}

// PublishError aggregates every subscriber failure from one publish call.
type PublishError struct {
	Channel  Channel
	Failures []SubscriberError
}

func (e *PublishError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("bus: %d subscriber(s) failed on %q: %s",
		len(e.Failures), e.Channel, strings.Join(parts, "; "))
}
