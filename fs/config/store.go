// Package config reads, writes and edits the settings file
package config

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
)

// DefaultPath is the settings file used when --config isn't given
const DefaultPath = "settings.json"

// ErrorKeyNotFound is returned by Get and Delete for unknown keys
var ErrorKeyNotFound = errors.New("key not found in settings")

// Store is the settings file held in memory.
//
// Every Set and Delete writes the whole file back before returning so
// the file on disk always matches what is in memory.
type Store struct {
	mu   sync.Mutex
	path string
	data map[string]interface{}
}

// NewStore returns a Store for the file at path holding the defaults.
// Call Load to read the file.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath
	}
	return &Store{
		path: path,
		data: Defaults(),
	}
}

// Path returns the file the store is persisted to
func (s *Store) Path() string {
	return s.path
}

// _load reads the file on top of the values in memory
//
// mu must be held when calling this
func (s *Store) _load() error {
	b, err := ioutil.ReadFile(s.path)
	if err != nil {
		return err
	}
	var data map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return errors.Wrapf(err, "failed to parse settings file %q", s.path)
	}
	for k, v := range data {
		s.data[k] = v
	}
	return nil
}

// Load reads the settings file.
//
// If the file doesn't exist it is created holding the defaults.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s._load()
	if os.IsNotExist(errors.Cause(err)) {
		fs.Logf(nil, "Settings file %q not found - writing defaults", s.path)
		return s._save()
	}
	return err
}

// _save writes the store to disk via a temporary file
//
// mu must be held when calling this
func (s *Store) _save() (err error) {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode settings")
	}
	dir, name := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "failed to create settings directory")
	}
	td, err := ioutil.TempFile(dir, name)
	if err != nil {
		return errors.Wrap(err, "failed to create temp file for new settings")
	}
	defer func() {
		_ = td.Close()
		if rmErr := os.Remove(td.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
			fs.Errorf(nil, "Failed to remove temp settings file: %v", rmErr)
		}
	}()
	if _, err = td.Write(append(b, '\n')); err != nil {
		return errors.Wrap(err, "failed to write settings file")
	}
	if err = td.Close(); err != nil {
		return errors.Wrap(err, "failed to close settings file")
	}
	var fileMode os.FileMode = 0600
	if info, err := os.Stat(s.path); err == nil {
		fileMode = info.Mode()
	}
	if err = os.Chmod(td.Name(), fileMode); err != nil {
		fs.Errorf(nil, "Failed to set permissions on settings file: %v", err)
	}
	if err = os.Rename(td.Name(), s.path); err != nil {
		return errors.Wrapf(err, "failed to move new settings to %q", s.path)
	}
	return nil
}

// Get returns the value of key and whether it was found
func (s *Store) Get(key string) (value interface{}, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok = s.data[key]
	return value, ok
}

// Set value for key and save the file
func (s *Store) Set(key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	return s._save()
}

// Delete key and save the file
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return errors.Wrap(ErrorKeyNotFound, key)
	}
	delete(s.data, key)
	return s._save()
}

// Keys returns the sorted keys of the store, skipping the comments
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		if strings.HasPrefix(k, "_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseValue interprets a value typed on the command line.
//
// Anything which parses as JSON ("true", "21", `["a","b"]`) is stored
// as that JSON value, everything else as a string.
func ParseValue(in string) interface{} {
	var v interface{}
	dec := json.NewDecoder(strings.NewReader(in))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil || dec.More() {
		return in
	}
	return v
}

// FormatValue renders a stored value for display
func FormatValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
