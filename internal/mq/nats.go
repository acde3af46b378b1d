package mq

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/codearena/judge/config"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const natsMessageIDHeader = "Nats-Msg-Id"

// NATSClient publishes and subscribes over core NATS subjects.
type NATSClient struct {
	conn *nats.Conn
}

// NewNATSClient connects to the server named by cfg.URL.
func NewNATSClient(cfg config.NATSConfig) (*NATSClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("nats url is required")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("judge"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &NATSClient{conn: conn}, nil
}

// Publish sends a message to the subject named by channel.
func (n *NATSClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("nats channel is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := uuid.NewString()
	msg := nats.NewMsg(channel)
	msg.Data = data
	msg.Header.Set(natsMessageIDHeader, messageID)
	for key, value := range attrs {
		msg.Header.Set(key, value)
	}

	if err := n.conn.PublishMsg(msg); err != nil {
		return "", err
	}
	return messageID, nil
}

// Subscribe handles messages on the subject until ctx is done. Core NATS
// has no redelivery, so handler errors only drop the message.
func (n *NATSClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("nats channel is required")
	}

	msgs := make(chan *nats.Msg, 64)
	sub, err := n.conn.ChanSubscribe(channel, msgs)
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-msgs:
			_ = handler(ctx, Message{
				ID:         msg.Header.Get(natsMessageIDHeader),
				Data:       msg.Data,
				Attributes: natsHeaderAttributes(msg.Header),
			})
		}
	}
}

// Close drains pending messages and closes the connection.
func (n *NATSClient) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

func natsHeaderAttributes(header nats.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(header))
	for key := range header {
		if key == natsMessageIDHeader {
			continue
		}
		attrs[key] = header.Get(key)
	}
	return attrs
}
