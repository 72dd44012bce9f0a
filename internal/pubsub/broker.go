package pubsub

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Broker is an in-memory pub/sub keyed by topic. Each topic remembers only its
// latest message, which new subscribers receive first.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[string][]chan []byte
	latest      map[string][]byte
}

type WsMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

var (
	once   sync.Once
	broker *Broker
)

func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[string][]chan []byte),
		latest:      make(map[string][]byte),
	}
}

// GetBroker returns the process-wide broker.
func GetBroker() *Broker {
	once.Do(func() {
		broker = NewBroker()
	})
	return broker
}

// MatchTopic is the topic carrying updates of one match.
func MatchTopic(matchID string) string {
	return "match:" + matchID
}

// Subscribe registers a subscriber for topic. The returned function removes it
// and closes the channel.
func (b *Broker) Subscribe(topic string) (<-chan []byte, func()) {
	b.mu.Lock()
	ch := make(chan []byte, 16)
	if msg, ok := b.latest[topic]; ok {
		ch <- msg
	}
	b.subscribers[topic] = append(b.subscribers[topic], ch)
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subscribers := b.subscribers[topic]
			for i, sub := range subscribers {
				if sub == ch {
					b.subscribers[topic] = append(subscribers[:i], subscribers[i+1:]...)
					close(ch)
					break
				}
			}
			if len(b.subscribers[topic]) == 0 {
				delete(b.subscribers, topic)
			}
			zap.S().Debugf("unsubscribed from topic %s", topic)
		})
	}
	return ch, unsubscribe
}

// Publish replaces the topic's latest message and fans it out. Subscribers
// whose buffer is full miss the message.
func (b *Broker) Publish(topic string, msg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest[topic] = msg
	for _, ch := range b.subscribers[topic] {
		select {
		case ch <- msg:
		default:
		}
	}
}

// PublishJSON wraps v in a WsMessage on the given stream and publishes it.
func (b *Broker) PublishJSON(topic, stream string, v interface{}) {
	b.Publish(topic, FormatMessage(stream, v))
}

// CloseTopic closes every subscriber of topic and forgets its latest message.
func (b *Broker) CloseTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers[topic] {
		close(ch)
	}
	delete(b.subscribers, topic)
	delete(b.latest, topic)
}

func FormatMessage(stream string, v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"stream": "error", "data": "json format error"}`)
	}
	bytes, err := json.Marshal(WsMessage{Stream: stream, Data: data})
	if err != nil {
		return []byte(`{"stream": "error", "data": "json format error"}`)
	}
	return bytes
}
