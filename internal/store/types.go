package store

import (
	"context"
	"encoding/json"
)

// KV is the persisted key-value contract every stateful component writes
// through. Values are informal JSON blobs with no version field; anything that
// fails to parse is treated as absent by the readers built on top.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// LoadJSON reads key and unmarshals it into out. A missing key or a corrupt
// value both report ok=false without an error: callers substitute defaults.
func LoadJSON(ctx context.Context, kv KV, key string, out any) (bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// Corrupt persisted state falls back to defaults rather than failing.
		return false, nil
	}
	return true, nil
}

// SaveJSON marshals v and overwrites key unconditionally (last write wins).
func SaveJSON(ctx context.Context, kv KV, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return kv.Set(ctx, key, raw)
}
