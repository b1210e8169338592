package bot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/craft-bot/internal/idempotency"
)

const updateKeyTTL = 24 * time.Hour

// UpdateProcessor runs the telebot handlers for one update.
type UpdateProcessor interface {
	ProcessUpdate(u telebot.Update)
}

// Dispatcher feeds webhook updates to the bot at most once per update_id when an
// idempotency manager is configured. Telegram redelivers an update until it gets a 2xx.
type Dispatcher struct {
	processor UpdateProcessor
	idem      idempotency.Manager
	log       *slog.Logger
}

// NewDispatcher creates a Dispatcher. idem may be nil.
func NewDispatcher(processor UpdateProcessor, idem idempotency.Manager, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{processor: processor, idem: idem, log: log}
}

// Dispatch processes the update. Duplicate deliveries return nil without running
// the handlers again.
func (d *Dispatcher) Dispatch(ctx context.Context, update telebot.Update) error {
	if d.processor == nil {
		return nil
	}
	if d.idem == nil || update.ID == 0 {
		d.processor.ProcessUpdate(update)
		return nil
	}

	res, err := d.idem.Execute(ctx, idempotency.UpdateKey(update.ID), updateKeyTTL, func(context.Context) (any, error) {
		d.processor.ProcessUpdate(update)
		return true, nil
	})
	switch {
	case errors.Is(err, idempotency.ErrRequestInProgress):
		d.log.Debug("update already in progress", slog.Int("update_id", update.ID))
		return nil
	case err != nil:
		// Store unavailable: fall back to at-least-once delivery.
		d.log.Warn("idempotency store failed, processing update directly", slog.Int("update_id", update.ID), slog.Any("error", err))
		d.processor.ProcessUpdate(update)
		return nil
	}

	if res.FromCache {
		d.log.Debug("duplicate update skipped", slog.Int("update_id", update.ID))
	}
	return nil
}
