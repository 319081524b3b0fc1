package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dreschagin/perf-audit-history/pkg/logger"
	"github.com/nats-io/nats.go"
)

// Options configures the NATS connection and the JetStream stream run events land in
type Options struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxAge        time.Duration
	FlushTimeout  time.Duration
}

// identified is implemented by events that carry a deduplication id
type identified interface {
	MessageID() string
}

// NATSPublisher implements EventPublisher for NATS JetStream
type NATSPublisher struct {
	nc           *nats.Conn
	js           nats.JetStreamContext
	flushTimeout time.Duration
	logger       *logger.Logger
}

// NewNATSPublisher connects to NATS and makes sure the run event stream exists
func NewNATSPublisher(opts Options, log *logger.Logger) (*NATSPublisher, error) {
	// Connect to NATS with retry
	nc, err := nats.Connect(opts.URL,
		nats.Name("perf-audit-history"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	if opts.StreamName != "" {
		if err := ensureStream(js, opts); err != nil {
			nc.Close()
			return nil, err
		}
	}

	log.Info("Connected to NATS", "url", opts.URL, "stream", opts.StreamName)

	return newPublisher(nc, js, opts.FlushTimeout, log), nil
}

func newPublisher(nc *nats.Conn, js nats.JetStreamContext, flushTimeout time.Duration, log *logger.Logger) *NATSPublisher {
	if flushTimeout <= 0 {
		flushTimeout = 5 * time.Second
	}
	return &NATSPublisher{nc: nc, js: js, flushTimeout: flushTimeout, logger: log}
}

func ensureStream(js nats.JetStreamContext, opts Options) error {
	_, err := js.StreamInfo(opts.StreamName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream %s: %w", opts.StreamName, err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:       opts.StreamName,
		Subjects:   []string{streamSubjects(opts.SubjectPrefix)},
		Storage:    nats.FileStorage,
		MaxAge:     opts.MaxAge,
		Duplicates: 2 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", opts.StreamName, err)
	}
	return nil
}

func streamSubjects(prefix string) string {
	if prefix == "" {
		return ">"
	}
	return prefix + ".>"
}

// buildMessage marshals the event and sets the dedup header when the event has an id
func buildMessage(subject string, event interface{}) (*nats.Msg, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	if id, ok := event.(identified); ok {
		msg.Header.Set(nats.MsgIdHdr, id.MessageID())
	}
	return msg, nil
}

// PublishEvent publishes an event to NATS (async)
func (p *NATSPublisher) PublishEvent(ctx context.Context, subject string, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := buildMessage(subject, event)
	if err != nil {
		return err
	}

	if _, err := p.js.PublishMsgAsync(msg); err != nil {
		p.logger.Error("Failed to publish event", err,
			"subject", subject,
		)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		"subject", subject,
		"size", len(msg.Data),
	)

	return nil
}

// Close waits for pending acks and drains the NATS connection
func (p *NATSPublisher) Close() error {
	if p.nc == nil {
		return nil
	}

	p.logger.Info("Closing NATS connection")
	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(p.flushTimeout):
		p.logger.Warn("Timed out waiting for pending NATS acks", "pending", p.js.PublishAsyncPending())
	}

	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
