// Package events announces collection changes on NATS with OpenTelemetry
// trace propagation.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

const (
	TypeIndexed = "indexed"
	TypeLoaded  = "loaded"

	DefaultSubjectPrefix = "studyrag.collection"
)

// Event describes a collection that was indexed or loaded.
type Event struct {
	Type       string    `json:"type"`
	Collection string    `json:"collection"`
	Chunks     int       `json:"chunks"`
	Dimension  int       `json:"dimension"`
	Embedder   string    `json:"embedder,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// headerCarrier adapts nats.Msg headers for the OTel TextMapCarrier.
type headerCarrier nats.Msg

func (c *headerCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *headerCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *headerCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NATSPublisher publishes JSON events to <prefix>.<type>.
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	owned  bool
}

// Connect dials url and returns a publisher that closes the connection on Close.
func Connect(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("studyrag"))
	if err != nil {
		return nil, err
	}
	p := NewNATSPublisher(nc, prefix)
	p.owned = true
	return p, nil
}

func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSPublisher{nc: nc, prefix: prefix}
}

func (p *NATSPublisher) Subject(eventType string) string { return p.prefix + "." + eventType }

func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	ctx, span := otel.Tracer("studyrag/events").Start(ctx, "events.publish")
	defer span.End()

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	msg := &nats.Msg{Subject: p.Subject(ev.Type), Data: data}
	otel.GetTextMapPropagator().Inject(ctx, (*headerCarrier)(msg))
	if err := p.nc.PublishMsg(msg); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.owned {
		p.nc.Close()
	}
}

// Subscribe decodes events published under prefix. Malformed messages are dropped.
func Subscribe(nc *nats.Conn, prefix string, handler func(context.Context, Event)) (*nats.Subscription, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return nc.Subscribe(prefix+".*", func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			return
		}
		ctx := otel.GetTextMapPropagator().Extract(context.Background(), (*headerCarrier)(msg))
		handler(ctx, ev)
	})
}

// Watch connects to url and hands every event under prefix to handler until
// ctx is done.
func Watch(ctx context.Context, url, prefix string, handler func(context.Context, Event)) error {
	nc, err := nats.Connect(url, nats.Name("studyrag-watch"))
	if err != nil {
		return err
	}
	defer nc.Close()

	sub, err := Subscribe(nc, prefix, handler)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()
	if err := nc.Flush(); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}
