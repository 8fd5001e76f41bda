package config

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFile(t *testing.T, path string) map[string]interface{} {
	b, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &data))
	return data
}

func TestStoreLoadMissingWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := NewStore(path)
	require.NoError(t, s.Load())

	data := readFile(t, path)
	assert.Equal(t, "Google Drive", data[KeyStorageProvider])
	assert.Equal(t, false, data[KeyBackupToCloud])
	assert.Equal(t, true, data[KeyNotifications])
	assert.Equal(t, "Forever (default)", data[KeyBackupExpiryDate])
	assert.Contains(t, data, "_comments")
	sources, ok := data[KeySourcePath].([]interface{})
	require.True(t, ok)
	assert.Len(t, sources, 3)
}

func TestStoreSetFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := NewStore(path)
	require.NoError(t, s.Load())

	require.NoError(t, s.Set(KeyHostname, "ftp.example.com"))
	assert.Equal(t, "ftp.example.com", readFile(t, path)[KeyHostname])

	// a second store sees the change
	s2 := NewStore(path)
	require.NoError(t, s2.Load())
	v, ok := s2.Get(KeyHostname)
	assert.True(t, ok)
	assert.Equal(t, "ftp.example.com", v)
}

func TestStoreDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s := NewStore(path)
	require.NoError(t, s.Load())

	require.NoError(t, s.Delete(KeyColorTheme))
	assert.NotContains(t, readFile(t, path), KeyColorTheme)
	_, ok := s.Get(KeyColorTheme)
	assert.False(t, ok)

	err := s.Delete("potato")
	assert.True(t, errors.Is(err, ErrorKeyNotFound))
}

func TestStoreLoadKeepsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, ioutil.WriteFile(path, []byte(`{"storage_provider": "FTP", "ftp_port": 2121, "extra": "x"}`), 0600))
	s := NewStore(path)
	require.NoError(t, s.Load())

	v, _ := s.Get(KeyStorageProvider)
	assert.Equal(t, "FTP", v)
	v, _ = s.Get("extra")
	assert.Equal(t, "x", v)
	// defaults fill in what the file doesn't have
	v, _ = s.Get(KeyColorTheme)
	assert.Equal(t, "blue", v)
	assert.NotContains(t, s.Keys(), "_comments")
}

func TestStoreLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, ioutil.WriteFile(path, []byte(`{"storage_provider": `), 0600))
	s := NewStore(path)
	err := s.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse settings file")
}

func TestParseValue(t *testing.T) {
	for _, test := range []struct {
		in   string
		want interface{}
	}{
		{"true", true},
		{"false", false},
		{"21", json.Number("21")},
		{`["a","b"]`, []interface{}{"a", "b"}},
		{"hello", "hello"},
		{"21abc", "21abc"},
		{"", ""},
		{"ftp.example.com", "ftp.example.com"},
	} {
		assert.Equal(t, test.want, ParseValue(test.in), test.in)
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "hello", FormatValue("hello"))
	assert.Equal(t, "true", FormatValue(true))
	assert.Equal(t, `["a","b"]`, FormatValue([]interface{}{"a", "b"}))
	assert.Equal(t, "21", FormatValue(json.Number("21")))
}
