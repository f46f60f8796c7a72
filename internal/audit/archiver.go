// Package audit archives auth events to object storage for retention.
package audit

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/inkwell-app/authserver/internal/mq"
	"github.com/inkwell-app/authserver/internal/storage"
)

// Archiver drains the auth-event channel and writes each event as a JSON
// object keyed by date and message id.
type Archiver struct {
	store   storage.ObjectStore
	bus     *mq.Bus
	channel string
	prefix  string
	logger  *slog.Logger
}

// NewArchiver constructs an Archiver.
func NewArchiver(store storage.ObjectStore, bus *mq.Bus, channel, prefix string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		store:   store,
		bus:     bus,
		channel: channel,
		prefix:  prefix,
		logger:  logger,
	}
}

// Run subscribes to the event channel and archives every message until
// the context is canceled. A failed write nacks the message so the broker
// redelivers it.
func (a *Archiver) Run(ctx context.Context) error {
	if err := a.store.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("ensure audit bucket %q: %w", a.store.Bucket(), err)
	}

	a.logger.Info("audit archiver started", "channel", a.channel, "bucket", a.store.Bucket())
	return a.bus.Subscribe(ctx, a.channel, a.archive)
}

func (a *Archiver) archive(ctx context.Context, msg mq.Message) error {
	key := a.objectKey(msg)
	if err := a.store.Put(ctx, key, bytes.NewReader(msg.Data), int64(len(msg.Data)), "application/json"); err != nil {
		a.logger.Error("archiving auth event", "key", key, "error", err)
		return err
	}
	return nil
}

// ObjectKey layout: <prefix>/<event type>/<message id>.json. Messages
// without a broker-assigned id get a fresh one so keys never collide.
func (a *Archiver) objectKey(msg mq.Message) string {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	eventType := msg.Attributes["type"]
	if eventType == "" {
		eventType = "unknown"
	}
	return fmt.Sprintf("%s/%s/%s.json", a.prefix, eventType, id)
}
