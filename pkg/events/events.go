package events

import (
	"sync"
	"time"
)

// EventType represents the type of event flowing through the broker.
type EventType string

const (
	EventWorkerCreated     EventType = "worker.created"
	EventWorkerSuspended   EventType = "worker.suspended"
	EventWorkerResumed     EventType = "worker.resumed"
	EventWorkerFailed      EventType = "worker.failed"
	EventWorkerExited      EventType = "worker.exited"
	EventOplogAppended     EventType = "oplog.appended"
	EventOplogSnapshot     EventType = "oplog.snapshot"
	EventPromiseCompleted  EventType = "promise.completed"
	EventInvocationStarted EventType = "invocation.started"
	EventInvocationDone    EventType = "invocation.completed"
	EventClusterNodeJoined EventType = "cluster_node.joined"
	EventClusterNodeLeft   EventType = "cluster_node.left"
	EventClusterNodeDown   EventType = "cluster_node.down"
	EventDeploymentChanged EventType = "deployment.changed"
	EventShardAssigned     EventType = "shard.assigned"
)

// Event represents a single occurrence published onto the broker.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker distributes events to subscribers; the packages that publish
// are listed in the package doc. The RPC fabric and the Gateway do not
// subscribe to it.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// SubscribeFiltered returns a channel that only receives events of the
// given types; the filtering goroutine exits when the caller calls the
// returned cancel function (stopping the broker does not end it).
func (b *Broker) SubscribeFiltered(types ...EventType) (Subscriber, func()) {
	want := make(map[EventType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	raw := b.Subscribe()
	filtered := make(Subscriber, 50)
	done := make(chan struct{})

	go func() {
		defer close(filtered)
		for {
			select {
			case ev, ok := <-raw:
				if !ok {
					return
				}
				if want[ev.Type] {
					select {
					case filtered <- ev:
					default:
					}
				}
			case <-done:
				return
			}
		}
	}()

	cancel := func() {
		select {
		case <-done:
		default:
			close(done)
		}
		b.Unsubscribe(raw)
	}
	return filtered, cancel
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; !ok {
		return
	}
	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
