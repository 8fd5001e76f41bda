// Package configmap provides an abstraction for reading and writing
// the options handed to a remote
package configmap

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Getter provides an interface to get config items
type Getter interface {
	// Get should get an item with the key passed in and return
	// the value. If the item is found then it should return true,
	// otherwise false.
	Get(key string) (value string, ok bool)
}

// Setter provides an interface to set config items
type Setter interface {
	// Set should set an item into persistent config store.
	Set(key, value string)
}

// Mapper provides an interface to read and write config
type Mapper interface {
	Getter
	Setter
}

// Map provides a wrapper around multiple Setter and
// Getter interfaces.
type Map struct {
	setters []Setter
	getters []Getter
}

// New returns an empty Map
func New() *Map {
	return &Map{}
}

// AddGetter appends a getter onto the end of the getters
func (c *Map) AddGetter(getter Getter) *Map {
	c.getters = append(c.getters, getter)
	return c
}

// AddSetter appends a setter onto the end of the setters
func (c *Map) AddSetter(setter Setter) *Map {
	c.setters = append(c.setters, setter)
	return c
}

// Get gets an item with the key passed in and return the value from
// the first getter. If the item is found then it returns true,
// otherwise false.
func (c *Map) Get(key string) (value string, ok bool) {
	for _, do := range c.getters {
		value, ok = do.Get(key)
		if ok {
			return value, ok
		}
	}
	return "", false
}

// Set sets an item into all the stored setters.
func (c *Map) Set(key, value string) {
	for _, do := range c.setters {
		do.Set(key, value)
	}
}

// Simple is a simple Mapper backed by a map
type Simple map[string]string

// Get the value
func (c Simple) Get(key string) (value string, ok bool) {
	value, ok = c[key]
	return value, ok
}

// Set the value
func (c Simple) Set(key, value string) {
	c[key] = value
}

// String the map value with sorted keys for reproducability.
//
// Values of keys listed in hide are replaced with "***".
func (c Simple) String(hide ...string) string {
	var ks = make([]string, 0, len(c))
	for k := range c {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	hidden := make(map[string]bool, len(hide))
	for _, k := range hide {
		hidden[k] = true
	}
	var out strings.Builder
	for _, k := range ks {
		if out.Len() > 0 {
			out.WriteRune(',')
		}
		value := c[k]
		if hidden[k] && value != "" {
			value = "***"
		}
		out.WriteString(k)
		out.WriteRune('=')
		out.WriteRune('\'')
		for _, ch := range value {
			out.WriteRune(ch)
			// Escape ' as ''
			if ch == '\'' {
				out.WriteRune(ch)
			}
		}
		out.WriteRune('\'')
	}
	return out.String()
}

// String reads key from m returning def if it isn't set
func String(m Getter, key, def string) string {
	value, ok := m.Get(key)
	if !ok || value == "" {
		return def
	}
	return value
}

// Bool reads key from m as a boolean returning def if it isn't set
func Bool(m Getter, key string, def bool) (bool, error) {
	value, ok := m.Get(key)
	if !ok || value == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return def, errors.Wrapf(err, "bad boolean for %q", key)
	}
	return b, nil
}

// Int reads key from m as an integer returning def if it isn't set
func Int(m Getter, key string, def int64) (int64, error) {
	value, ok := m.Get(key)
	if !ok || value == "" {
		return def, nil
	}
	i, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def, errors.Wrapf(err, "bad integer for %q", key)
	}
	return i, nil
}

// Duration reads key from m as a duration returning def if it isn't set
func Duration(m Getter, key string, def time.Duration) (time.Duration, error) {
	value, ok := m.Get(key)
	if !ok || value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def, errors.Wrapf(err, "bad duration for %q", key)
	}
	return d, nil
}
