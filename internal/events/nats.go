package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectProgressUpdated is the NATS subject for forwarded progress events
const SubjectProgressUpdated = "fluentbuddy.progress.updated"

// NatsConfig holds NATS configuration
type NatsConfig struct {
	URL     string
	Subject string
	Timeout time.Duration
}

// NatsForwarder republishes bus events to NATS so other services can react
type NatsForwarder struct {
	conn    *nats.Conn
	subject string
	unsub   func()
}

// ConnectNats opens a NATS connection with reconnect logging
func ConnectNats(cfg NatsConfig) (*nats.Conn, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("fluentbuddy"),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected to %s", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}

// NewNatsForwarder subscribes to bus and forwards every event to NATS
func NewNatsForwarder(bus *Bus, conn *nats.Conn, subject string) *NatsForwarder {
	if subject == "" {
		subject = SubjectProgressUpdated
	}
	f := &NatsForwarder{conn: conn, subject: subject}
	f.unsub = bus.Subscribe(f.forward)
	return f
}

func (f *NatsForwarder) forward(ev ProgressUpdated) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("failed to encode progress event: %v", err)
		return
	}
	if err := f.conn.Publish(f.subject, data); err != nil {
		log.Printf("failed to forward progress event to NATS: %v", err)
	}
}

// Close stops forwarding and drains the connection
func (f *NatsForwarder) Close() error {
	f.unsub()
	return f.conn.Drain()
}
