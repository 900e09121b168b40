package repository

import (
	"context"
	"encoding/json"
)

// KeyValueStore is a key-granular string store holding one session record.
type KeyValueStore interface {
	// Get returns the values of the requested keys; missing keys are absent from the map.
	Get(ctx context.Context, keys []string) (map[string]string, error)
	// Commit writes every pair or none of them.
	Commit(ctx context.Context, values map[string]string) error
	// Remove deletes the keys; removing missing keys is not an error.
	Remove(ctx context.Context, keys []string) error
}

// Change describes a modification of one key in a shared store.
// An empty NewValue means the key was removed.
type Change struct {
	Key      string `json:"key"`
	OldValue string `json:"old_value,omitempty"`
	NewValue string `json:"new_value,omitempty"`
	Origin   string `json:"origin"`
	Profile  string `json:"profile,omitempty"`
}

func (c Change) Removed() bool {
	return c.NewValue == ""
}

// ChangeFeed delivers changes made through other handles of the same shared store.
// Changes made through the subscribing handle are never delivered back to it.
type ChangeFeed interface {
	Subscribe(ctx context.Context, handler func(Change)) (unsubscribe func(), err error)
}

// DurableStore is the shared store surviving restarts.
type DurableStore interface {
	KeyValueStore
	ChangeFeed
	Ping(ctx context.Context) error
	Close() error
}

// Diff computes the changes turning before into after for the given keys.
func Diff(keys []string, before, after map[string]string, origin string) []Change {
	var changes []Change
	for _, key := range keys {
		oldValue, newValue := before[key], after[key]
		if oldValue == newValue {
			continue
		}
		changes = append(changes, Change{Key: key, OldValue: oldValue, NewValue: newValue, Origin: origin})
	}
	return changes
}

// EncodeChange serializes a change for transports carrying strings.
func EncodeChange(c Change) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// DecodeChange parses a change produced by EncodeChange.
func DecodeChange(payload string) (Change, error) {
	var c Change
	err := json.Unmarshal([]byte(payload), &c)
	return c, err
}
