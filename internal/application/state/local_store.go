package state

import (
	"encoding/json"
	"fmt"
)

// Local durable storage keys. Shared by every manager ("tab") on the same profile.
const (
	KeyCart      = "solare-cart"
	KeyFavorites = "solare-favs"
	KeySessionID = "solare_session_id"

	// KeyFavoritesAnonymous holds the pre-sign-in favorites while a user is signed in.
	KeyFavoritesAnonymous = "solare-favs-anon"
)

// LocalStore is browser-local key/value persistence with change notifications.
//
// Watch semantics follow the platform storage event:
// - fn fires for writes made by OTHER stores sharing the same profile, never for own writes
// - present is false when the key was removed
// - notifications are advisory and arrive after the fact
type LocalStore interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	Remove(key string) error
	Watch(key string, fn func(value []byte, present bool)) (cancel func())
}

func loadJSON[T any](ls LocalStore, key string) (T, bool, error) {
	var zero T
	if ls == nil {
		return zero, false, nil
	}

	raw, ok, err := ls.Get(key)
	if err != nil {
		return zero, false, fmt.Errorf("local store get %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return zero, false, nil
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, false, fmt.Errorf("local store decode %s: %w", key, err)
	}
	return v, true, nil
}

func saveJSON(ls LocalStore, key string, v any) error {
	if ls == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("local store encode %s: %w", key, err)
	}
	if err := ls.Set(key, raw); err != nil {
		return fmt.Errorf("local store set %s: %w", key, err)
	}
	return nil
}
