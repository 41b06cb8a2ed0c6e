// Package events is the in-process fan-out for the SSE journal feed:
// every successfully processed command's frozen JournalEvent is
// published here, and GET /events subscribers read it back as it
// happens, over a subscribe/unsubscribe/publish channel trio.
package events

import (
	"sync"

	"github.com/ledgerbank/ledger-core/internal/domain/queue"
)

// Broker manages client subscriptions and broadcasts journal events.
type Broker struct {
	clients       map[chan queue.JournalEvent]bool
	newClients    chan chan queue.JournalEvent
	closedClients chan chan queue.JournalEvent
	events        chan queue.JournalEvent
}

var (
	// BrokerInstance is the global event broker (singleton).
	BrokerInstance *Broker
	brokerOnce     sync.Once
)

// GetBroker returns the singleton event broker instance.
func GetBroker() *Broker {
	brokerOnce.Do(func() {
		BrokerInstance = NewBroker()
	})
	return BrokerInstance
}

// NewBroker creates and starts a new Broker. Public for testing;
// production code should use GetBroker().
func NewBroker() *Broker {
	b := &Broker{
		clients:       make(map[chan queue.JournalEvent]bool),
		newClients:    make(chan chan queue.JournalEvent),
		closedClients: make(chan chan queue.JournalEvent),
		events:        make(chan queue.JournalEvent),
	}

	go b.start()
	return b
}

func (b *Broker) start() {
	for {
		select {
		case client := <-b.newClients:
			b.clients[client] = true
		case client := <-b.closedClients:
			delete(b.clients, client)
			close(client)
		case event := <-b.events:
			for client := range b.clients {
				select {
				case client <- event:
				default:
					// A slow SSE subscriber does not block journal
					// processing; it simply misses this event.
				}
			}
		}
	}
}

// Subscribe registers a new listener and returns its channel.
func (b *Broker) Subscribe() chan queue.JournalEvent {
	ch := make(chan queue.JournalEvent)
	b.newClients <- ch
	return ch
}

// Unsubscribe removes a listener.
func (b *Broker) Unsubscribe(ch chan queue.JournalEvent) {
	b.closedClients <- ch
}

// Publish sends the given event to all connected clients.
func (b *Broker) Publish(event queue.JournalEvent) {
	b.events <- event
}
