// Package settings provides layered node settings with first-write-wins
// semantics. Later layers never overwrite a key an earlier layer set.
package settings

import (
	"fmt"
	"sort"

	"dario.cat/mergo"
)

// Settings accumulates configuration for one node. Keys keep their
// insertion order so rendered configuration stays stable across runs.
type Settings struct {
	kv    map[string]interface{}
	order []string
}

// New creates an empty settings accumulator.
func New() *Settings {
	return &Settings{
		kv: make(map[string]interface{}),
	}
}

// Put sets a key unconditionally.
func (s *Settings) Put(key, value string) *Settings {
	if _, ok := s.kv[key]; !ok {
		s.order = append(s.order, key)
	}
	s.kv[key] = value
	return s
}

// PutList sets a list-valued key unconditionally.
func (s *Settings) PutList(key string, values ...string) *Settings {
	if _, ok := s.kv[key]; !ok {
		s.order = append(s.order, key)
	}
	list := make([]string, len(values))
	copy(list, values)
	s.kv[key] = list
	return s
}

// PutIfAbsent sets a key only when no earlier layer set it. Empty values
// are ignored so a layer cannot blank out a later default.
func (s *Settings) PutIfAbsent(key, value string) *Settings {
	if value == "" {
		return s
	}
	if _, ok := s.kv[key]; ok {
		return s
	}
	return s.Put(key, value)
}

// Get returns the string value for key, or "" when absent or list-valued.
func (s *Settings) Get(key string) string {
	if v, ok := s.kv[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// GetList returns the list value for key. A scalar value is returned as a
// single-element list.
func (s *Settings) GetList(key string) []string {
	switch v := s.kv[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case string:
		return []string{v}
	}
	return nil
}

// Has reports whether any layer set key.
func (s *Settings) Has(key string) bool {
	_, ok := s.kv[key]
	return ok
}

// Remove deletes a key. Used to strip source-path settings that must not
// reach the node after provisioning consumed them.
func (s *Settings) Remove(key string) {
	if _, ok := s.kv[key]; !ok {
		return
	}
	delete(s.kv, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Keys returns the keys in insertion order.
func (s *Settings) Keys() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Len returns the number of keys set.
func (s *Settings) Len() int {
	return len(s.kv)
}

// Merge fills every key of defaults that is still absent. Existing keys
// are never overwritten. Newly filled keys are appended in sorted order
// so rendered configuration stays stable across runs.
func (s *Settings) Merge(defaults map[string]interface{}) error {
	if err := mergo.Merge(&s.kv, defaults); err != nil {
		return fmt.Errorf("failed to merge settings layer: %w", err)
	}
	known := make(map[string]bool, len(s.order))
	for _, k := range s.order {
		known[k] = true
	}
	added := make([]string, 0, len(defaults))
	for k := range defaults {
		if _, ok := s.kv[k]; ok && !known[k] {
			added = append(added, k)
		}
	}
	sort.Strings(added)
	s.order = append(s.order, added...)
	return nil
}

// Snapshot returns an immutable copy of the accumulated settings.
func (s *Settings) Snapshot() Snapshot {
	kv := make(map[string]interface{}, len(s.kv))
	for k, v := range s.kv {
		if list, ok := v.([]string); ok {
			cp := make([]string, len(list))
			copy(cp, list)
			kv[k] = cp
			continue
		}
		kv[k] = v
	}
	keys := make([]string, len(s.order))
	copy(keys, s.order)
	return Snapshot{kv: kv, keys: keys}
}

// Snapshot is a read-only view of node settings, retained by node records
// after build and exposed by running nodes.
type Snapshot struct {
	kv   map[string]interface{}
	keys []string
}

// Get returns the string value for key, or "" when absent.
func (s Snapshot) Get(key string) string {
	if v, ok := s.kv[key]; ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return ""
}

// GetList returns the list value for key.
func (s Snapshot) GetList(key string) []string {
	switch v := s.kv[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case string:
		return []string{v}
	}
	return nil
}

// Has reports whether key is set.
func (s Snapshot) Has(key string) bool {
	_, ok := s.kv[key]
	return ok
}

// Keys returns the keys in insertion order.
func (s Snapshot) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}
