package reliability

import (
	"context"
	"time"
)

// DualBackend layers a fast local Backend in front of a slower shared one
// (read-through, write-through), grounded on caches/dual/dual.go in the
// teacher. A hit on Local short-circuits Shared; a miss on Local that hits
// Shared backfills Local so the next read is fast.
type DualBackend struct {
	Local  Backend
	Shared Backend
}

// NewDualBackend composes local in front of shared.
func NewDualBackend(local, shared Backend) *DualBackend {
	return &DualBackend{Local: local, Shared: shared}
}

func (d *DualBackend) Init(ctx context.Context) error {
	if err := d.Local.Init(ctx); err != nil {
		return err
	}
	return d.Shared.Init(ctx)
}

func (d *DualBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if v, hit, err := d.Local.Get(ctx, key); err == nil && hit {
		return v, true, nil
	}
	v, hit, err := d.Shared.Get(ctx, key)
	if err != nil || !hit {
		return v, hit, err
	}
	// Backfill local with a short TTL; Shared remains the source of truth
	// for the entry's real expiry.
	_ = d.Local.Put(ctx, key, v, time.Now().Add(time.Minute))
	return v, true, nil
}

func (d *DualBackend) Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	if err := d.Shared.Put(ctx, key, value, expiresAt); err != nil {
		return err
	}
	return d.Local.Put(ctx, key, value, expiresAt)
}

func (d *DualBackend) Delete(ctx context.Context, key string) error {
	if err := d.Shared.Delete(ctx, key); err != nil {
		return err
	}
	return d.Local.Delete(ctx, key)
}

func (d *DualBackend) Clear(ctx context.Context) error {
	if err := d.Shared.Clear(ctx); err != nil {
		return err
	}
	return d.Local.Clear(ctx)
}

func (d *DualBackend) ListKeys(ctx context.Context, pattern string) ([]string, error) {
	return d.Shared.ListKeys(ctx, pattern)
}

func (d *DualBackend) Info(ctx context.Context) (BackendInfo, error) {
	info, err := d.Shared.Info(ctx)
	info.Name = "dual"
	return info, err
}
