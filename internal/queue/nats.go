// Coursetrace - Learner Activity Analytics for Online Learning Platforms
// Copyright 2026 Coursetrace Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coursetrace/coursetrace

package queue

import (
	"fmt"
	"time"

	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/coursetrace/coursetrace/internal/logging"
)

// NATSConfig holds JetStream transport settings.
type NATSConfig struct {
	// URL is the NATS server address.
	URL string

	// DurableName prefixes durable consumer names so redeploys resume
	// from the last acknowledged job.
	DurableName string

	// QueueGroup load-balances consumption across instances.
	QueueGroup string

	// SubscribersCount is the number of concurrent pull loops per topic.
	SubscribersCount int

	// AckWaitTimeout is how long JetStream waits before redelivering an
	// unacknowledged job.
	AckWaitTimeout time.Duration

	// MaxDeliver bounds redeliveries of one message.
	MaxDeliver int

	MaxReconnects int
	ReconnectWait time.Duration
	CloseTimeout  time.Duration
}

// DefaultNATSConfig returns production defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:              "nats://127.0.0.1:4222",
		DurableName:      "coursetrace",
		QueueGroup:       "recorders",
		SubscribersCount: 4,
		AckWaitTimeout:   30 * time.Second,
		MaxDeliver:       10,
		MaxReconnects:    60,
		ReconnectWait:    2 * time.Second,
		CloseTimeout:     30 * time.Second,
	}
}

// NewNATSPublisher creates a JetStream publisher for the job queues.
func NewNATSPublisher(cfg NATSConfig) (message.Publisher, error) {
	logger := logging.NewWatermillAdapter()

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOptions(cfg),
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      false,
			AutoProvision: true,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}
	return pub, nil
}

// NewNATSSubscriber creates a durable JetStream subscriber. Consumption is
// queue-group balanced so multiple instances share each category's load,
// and unacknowledged jobs are redelivered after AckWaitTimeout, which is
// the at-least-once contract the executor is built against.
func NewNATSSubscriber(cfg NATSConfig) (message.Subscriber, error) {
	logger := logging.NewWatermillAdapter()

	subOpts := []natsgo.SubOpt{
		natsgo.MaxDeliver(cfg.MaxDeliver),
		natsgo.AckWait(cfg.AckWaitTimeout),
		natsgo.DeliverNew(),
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		AckWaitTimeout:   cfg.AckWaitTimeout,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOptions(cfg),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:         false,
			AutoProvision:    true,
			AckAsync:         false,
			SubscribeOptions: subOpts,
			DurablePrefix:    cfg.DurableName,
		},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}
	return sub, nil
}

func natsOptions(cfg NATSConfig) []natsgo.Option {
	return []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logging.Error().Err(err).Msg("nats disconnected")
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logging.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}
}
