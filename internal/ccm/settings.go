package ccm

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Settings is an insertion-ordered set of configuration entries. Setting an existing key
// replaces its value in place. The zero value is empty and ready to use.
type Settings struct {
	keys   []string
	values map[string]any
}

func NewSettings() *Settings {
	return &Settings{values: make(map[string]any)}
}

// SettingsFromMap copies m, ordering the keys alphabetically.
func SettingsFromMap(m map[string]any) *Settings {
	s := NewSettings()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		s.Set(k, m[k])
	}
	return s
}

func (s *Settings) Set(key string, value any) {
	if s.values == nil {
		s.values = make(map[string]any)
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
}

func (s *Settings) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Settings) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.keys = slices.DeleteFunc(s.keys, func(k string) bool { return k == key })
}

func (s *Settings) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

func (s *Settings) Keys() []string { return slices.Clone(s.keys) }

func (s *Settings) Clone() *Settings {
	c := &Settings{keys: slices.Clone(s.keys), values: make(map[string]any, len(s.values))}
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}

// Equal compares content only; insertion order is ignored. A nil Settings equals an
// empty one.
func (s *Settings) Equal(o *Settings) bool {
	if s.Len() != o.Len() {
		return false
	}
	if s == nil || o == nil {
		return true
	}
	for k, v := range s.values {
		ov, ok := o.values[k]
		if !ok || !reflect.DeepEqual(v, ov) {
			return false
		}
	}
	return true
}

// Args renders the entries as space separated key:value tokens.
func (s *Settings) Args() string {
	parts := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		parts = append(parts, fmt.Sprintf("%s:%v", k, s.values[k]))
	}
	return strings.Join(parts, " ")
}

// Port reads key as a port number.
func (s *Settings) Port(key string) (int, error) {
	v, ok := s.values[key]
	if !ok {
		return 0, fmt.Errorf("%s is not configured", key)
	}
	port, err := strconv.Atoi(fmt.Sprint(v))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return port, nil
}

// Randomized returns a copy with RandomPort replaced in every string value.
func (s *Settings) Randomized() (*Settings, error) {
	c := s.Clone()
	for k, v := range c.values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		r, err := RandomizePorts(str)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		c.values[k] = r
	}
	return c, nil
}

// fingerprint is an order-independent rendering used for builder hashing.
func (s *Settings) fingerprint() string {
	if s == nil {
		return ""
	}
	keys := slices.Sorted(slices.Values(s.keys))
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%q=%T:%q;", k, s.values[k], fmt.Sprint(s.values[k]))
	}
	return b.String()
}
