package broker

import (
	"encoding/json"

	"github.com/avvvet/viand-services/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// Broker fans card events out through NATS so every service instance can
// reach the sockets it holds. With no NATS connection events are delivered
// in process.
type Broker struct {
	Conn     *nats.Conn
	Instance string
	Deliver  func(comm.CardEvent)
}

func NewBroker(conn *nats.Conn, instance string, deliver func(comm.CardEvent)) *Broker {
	return &Broker{
		Conn:     conn,
		Instance: instance,
		Deliver:  deliver,
	}
}

// consume card events published by any instance
func (b *Broker) Subscribe(topic string) (*nats.Subscription, error) {
	sub, err := b.Conn.Subscribe(topic, b.handleMessages)
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func (b *Broker) Publish(topic string, payload []byte) error {
	err := b.Conn.Publish(topic, payload)
	if err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}

	return nil
}

// PublishCardEvent announces a card mutation. Failures are logged only; the
// mutation itself has already been stored.
func (b *Broker) PublishCardEvent(ev comm.CardEvent) {
	ev.Instance = b.Instance

	if b.Conn == nil {
		b.deliver(ev)
		return
	}

	bytes, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("Failed to marshal card event: %v", err)
		return
	}

	_ = b.Publish(comm.CardEventsSubject, bytes)
}

func (b *Broker) handleMessages(msgNats *nats.Msg) {
	b.handleMessage(msgNats.Data)
}

func (b *Broker) handleMessage(data []byte) {
	ev := comm.CardEvent{}
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Errorf("Error decoding card event %s", err)
		return
	}

	switch ev.Type {
	case comm.CardCreated, comm.CardUpdated, comm.CardDeleted:
		b.deliver(ev)
	default:
		log.Warnf("unknown card event received: %s", ev.Type)
	}
}

func (b *Broker) deliver(ev comm.CardEvent) {
	if b.Deliver != nil {
		b.Deliver(ev)
	}
}
