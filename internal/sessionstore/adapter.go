package sessionstore

import (
	"context"

	"go.uber.org/zap"

	"github.com/fastygo/storefront-session/domain"
	"github.com/fastygo/storefront-session/repository"
)

// Slot selects one of the two stores.
type Slot int

const (
	Ephemeral Slot = iota
	Durable
)

func (s Slot) String() string {
	if s == Durable {
		return "durable"
	}
	return "ephemeral"
}

// SlotFor returns the slot a record with the given durability lives in.
func SlotFor(durable bool) Slot {
	if durable {
		return Durable
	}
	return Ephemeral
}

// Adapter reads and writes whole session records in either store. Store and codec
// failures are logged and reported as "no record"; callers never see them on Read.
type Adapter struct {
	ephemeral repository.KeyValueStore
	durable   repository.KeyValueStore
	logger    *zap.Logger
}

// NewAdapter wraps the two stores. Both must share the same key layout.
func NewAdapter(ephemeral, durable repository.KeyValueStore, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{ephemeral: ephemeral, durable: durable, logger: logger}
}

func (a *Adapter) store(slot Slot) repository.KeyValueStore {
	if slot == Durable {
		return a.durable
	}
	return a.ephemeral
}

// Read returns the record held in slot, or false when it is absent or unreadable.
func (a *Adapter) Read(ctx context.Context, slot Slot) (domain.Record, bool) {
	values, err := a.store(slot).Get(ctx, Keys)
	if err != nil {
		a.logger.Warn("session store read failed", zap.Stringer("slot", slot), zap.Error(err))
		return domain.Record{}, false
	}
	if len(values) == 0 {
		return domain.Record{}, false
	}
	rec, err := Decode(values)
	if err != nil {
		a.logger.Debug("ignoring session record", zap.Stringer("slot", slot), zap.Error(err))
		return domain.Record{}, false
	}
	return rec, true
}

// Write commits all fields of rec to slot in one operation.
func (a *Adapter) Write(ctx context.Context, slot Slot, rec domain.Record) error {
	values, err := Encode(rec)
	if err != nil {
		a.logger.Error("session record encoding failed", zap.Error(err))
		return err
	}
	if err := a.store(slot).Commit(ctx, values); err != nil {
		a.logger.Error("session store write failed", zap.Stringer("slot", slot), zap.Error(err))
		return err
	}
	return nil
}

// Clear removes every session key from slot.
func (a *Adapter) Clear(ctx context.Context, slot Slot) {
	if err := a.store(slot).Remove(ctx, Keys); err != nil {
		a.logger.Warn("session store clear failed", zap.Stringer("slot", slot), zap.Error(err))
	}
}
