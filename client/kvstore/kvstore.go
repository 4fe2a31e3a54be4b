package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MaxValueSize caps one stored value. POS devices share the store with cart
// and queue snapshots; a runaway value would starve everything else.
const MaxValueSize = 1 << 20

// Well-known keys. Theater-scoped keys are built with the helpers below.
const (
	KeyAuthToken = "authToken"
)

var ErrValueTooLarge = errors.New("kvstore: value exceeds size limit")

// Store is a file-backed JSON key-value store. One file per device; writes go
// through a temp file rename so a crash never leaves a torn store.
type Store struct {
	mu   sync.Mutex
	path string
	data map[string]json.RawMessage
}

// Open loads (or creates) the store file at path.
func Open(path string) (*Store, error) {
	s := &Store{path: path, data: make(map[string]json.RawMessage)}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("kvstore: corrupt store %s: %w", path, err)
		}
	}
	return s, nil
}

// Get unmarshals the value under key into dest. Returns false on a miss.
func (s *Store) Get(key string, dest interface{}) (bool, error) {
	s.mu.Lock()
	raw, ok := s.data[key]
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, err
	}
	return true, nil
}

// Set stores value under key and flushes to disk.
func (s *Store) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if len(raw) > MaxValueSize {
		return ErrValueTooLarge
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = raw
	return s.flushLocked()
}

// Delete removes key and flushes to disk.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flushLocked()
}

// Keys returns every stored key.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}

func (s *Store) flushLocked() error {
	raw, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// PendingOrdersKey is the offline queue for one theater.
func PendingOrdersKey(theaterID uint) string {
	return fmt.Sprintf("pending_orders_%d", theaterID)
}

// POSCartKey is the offline POS cart for one theater.
func POSCartKey(theaterID uint) string {
	return fmt.Sprintf("offline_pos_cart_%d", theaterID)
}

// KioskCartKey is the kiosk cart for one theater.
func KioskCartKey(theaterID uint) string {
	return fmt.Sprintf("kioskCart_%d", theaterID)
}

// StockUpdatedKey flags cross-tab stock refresh for one theater.
func StockUpdatedKey(theaterID uint) string {
	return fmt.Sprintf("stock_updated_%d", theaterID)
}

// SalesUpdatedKey flags cross-tab sales refresh for one theater.
func SalesUpdatedKey(theaterID uint) string {
	return fmt.Sprintf("sales_updated_%d", theaterID)
}
