package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"cargo_parser/internal/chat"
)

// SubscriberConfig holds NATS subscription settings.
type SubscriberConfig struct {
	URL     string
	Subject string
	Queue   string // Optional queue group for load-balanced consumers.
	Buffer  int    // Pending message channel size, default 256.
}

// Subscriber feeds chat envelopes from a NATS subject into a pipeline.
type Subscriber struct {
	cfg      SubscriberConfig
	pipeline *Pipeline
	log      *zap.Logger
}

// NewSubscriber creates a subscriber. It does not connect until Run.
func NewSubscriber(cfg SubscriberConfig, pipeline *Pipeline, log *zap.Logger) *Subscriber {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Subscriber{cfg: cfg, pipeline: pipeline, log: log}
}

// Run consumes messages until ctx is cancelled. Undecodable payloads are
// logged and skipped.
func (s *Subscriber) Run(ctx context.Context) error {
	nc, err := nats.Connect(s.cfg.URL,
		nats.Name("cargo_parser"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	ch := make(chan *nats.Msg, s.cfg.Buffer)

	var sub *nats.Subscription
	if s.cfg.Queue != "" {
		sub, err = nc.ChanQueueSubscribe(s.cfg.Subject, s.cfg.Queue, ch)
	} else {
		sub, err = nc.ChanSubscribe(s.cfg.Subject, ch)
	}
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", s.cfg.Subject, err)
	}
	defer func() { _ = sub.Unsubscribe() }()

	s.log.Info("subscribed",
		zap.String("url", s.cfg.URL),
		zap.String("subject", s.cfg.Subject),
		zap.String("queue", s.cfg.Queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-ch:
			s.handle(ctx, m.Data)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, data []byte) {
	msg := chat.Decode(data)
	if msg == nil {
		s.log.Warn("skipping undecodable payload", zap.Int("bytes", len(data)))
		return
	}

	rec, err := s.pipeline.Ingest(ctx, msg)
	s.pipeline.logRecord(rec, err)
}
