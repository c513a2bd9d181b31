package service

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"waiterboard/domain/waiter"
	"waiterboard/snapshot"
)

// Settings returns the stored settings with defaults for anything unset.
func (s *WaiterService) Settings(ctx context.Context) (waiter.Settings, error) {
	kv, err := s.store.Settings(ctx)
	if err != nil {
		return waiter.Settings{}, errors.Wrap(err, "load settings")
	}
	return waiter.DecodeSettings(kv), nil
}

// UpdateSettings merges a partial update into the current settings,
// validates the result and persists it.
func (s *WaiterService) UpdateSettings(ctx context.Context, update map[string]any) (waiter.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.Settings(ctx)
	if err != nil {
		return waiter.Settings{}, err
	}
	next, err := cur.Merge(update)
	if err != nil {
		return waiter.Settings{}, err
	}
	if err := next.Validate(); err != nil {
		return waiter.Settings{}, err
	}
	if err := s.store.PutSettings(ctx, next.Encode()); err != nil {
		return waiter.Settings{}, errors.Wrap(err, "save settings")
	}

	s.log.Info("settings updated", zap.Int("keys", len(update)))
	s.publish(ctx, waiter.Event{
		V:        waiter.EventVersion,
		ID:       s.newID(),
		Type:     waiter.EventSettingsUpdated,
		Settings: &next,
		At:       s.now(),
	})
	return next, nil
}

// ExportSettings writes the full current settings document.
func (s *WaiterService) ExportSettings(ctx context.Context, w io.Writer, f snapshot.Format) error {
	cur, err := s.Settings(ctx)
	if err != nil {
		return err
	}
	return snapshot.EncodeSettings(w, cur, f)
}

// ImportSettings reads a full or partial settings document and applies it
// like UpdateSettings.
func (s *WaiterService) ImportSettings(ctx context.Context, r io.Reader, f snapshot.Format) (waiter.Settings, error) {
	update, err := snapshot.DecodeSettings(r, f)
	if err != nil {
		return waiter.Settings{}, err
	}
	return s.UpdateSettings(ctx, update)
}
