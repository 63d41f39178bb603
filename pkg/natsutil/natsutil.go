// Package natsutil provides JSON publish helpers for NATS with
// OpenTelemetry trace propagation in message headers.
package natsutil

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

// MsgPublisher is the part of *nats.Conn used by Publish.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// natsHeaderCarrier adapts nats.Msg headers for OTel TextMapCarrier.
type natsHeaderCarrier nats.Msg

func (c *natsHeaderCarrier) Get(key string) string {
	if c.Header == nil {
		return ""
	}
	return c.Header.Get(key)
}

func (c *natsHeaderCarrier) Set(key, val string) {
	if c.Header == nil {
		c.Header = make(nats.Header)
	}
	c.Header.Set(key, val)
}

func (c *natsHeaderCarrier) Keys() []string {
	if c.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(c.Header))
	for k := range c.Header {
		keys = append(keys, k)
	}
	return keys
}

// NewMsg encodes v as JSON into a message for subject, carrying the trace
// context of ctx and any extra headers.
func NewMsg(ctx context.Context, subject string, v any, headers map[string]string) (*nats.Msg, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	msg := &nats.Msg{Subject: subject, Data: data}
	for k, val := range headers {
		(*natsHeaderCarrier)(msg).Set(k, val)
	}
	otel.GetTextMapPropagator().Inject(ctx, (*natsHeaderCarrier)(msg))
	return msg, nil
}

// Publish serializes v as JSON and publishes to the given subject.
func Publish[T any](ctx context.Context, nc MsgPublisher, subject string, v T) error {
	return PublishWithHeaders(ctx, nc, subject, v, nil)
}

// PublishWithHeaders is Publish with extra message headers.
func PublishWithHeaders[T any](ctx context.Context, nc MsgPublisher, subject string, v T, headers map[string]string) error {
	msg, err := NewMsg(ctx, subject, v, headers)
	if err != nil {
		return err
	}
	return nc.PublishMsg(msg)
}
