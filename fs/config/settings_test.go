package config

import (
	"path/filepath"
	"testing"

	"github.com/safearchive/safearchive/fs"
	"github.com/safearchive/safearchive/fs/config/obscure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	s := NewStore(filepath.Join(t.TempDir(), "settings.json"))
	require.NoError(t, s.Load())
	return s
}

func TestLoadSettingsDefaults(t *testing.T) {
	s := newTestStore(t)
	st, err := LoadSettings(s)
	require.NoError(t, err)

	assert.Len(t, st.SourcePaths, 3)
	assert.False(t, st.BackupToCloud)
	assert.True(t, st.Notifications)
	assert.Equal(t, DefaultStorageProvider, st.StorageProvider)
	assert.Equal(t, DefaultFTPPort, st.FTPPort)
	assert.False(t, st.FTPTLS)
	assert.True(t, st.DriveUseTrash)
	assert.Equal(t, fs.DefaultArchiveFolder, st.ArchiveFolder)
	dir := filepath.Dir(s.Path())
	assert.Equal(t, filepath.Join(dir, DefaultClientSecretsFile), st.ClientSecretsFile)
	assert.Equal(t, filepath.Join(dir, DefaultTokenFile), st.TokenFile)
}

func TestLoadSettingsValues(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set(KeySourcePath, []interface{}{"/data/a", "/data/b"}))
	require.NoError(t, s.Set(KeyBackupToCloud, ParseValue("true")))
	require.NoError(t, s.Set(KeyStorageProvider, "FTP"))
	require.NoError(t, s.Set(KeyHostname, "ftp.example.com"))
	require.NoError(t, s.Set(KeyUsername, "user"))
	require.NoError(t, s.Set(KeyPassword, "plain"))
	require.NoError(t, s.Set(KeyFTPPort, ParseValue("2121")))
	require.NoError(t, s.Set(KeyFTPTLS, "True"))
	require.NoError(t, s.Set(KeyClientSecretsFile, "/etc/secrets.json"))

	st, err := LoadSettings(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/a", "/data/b"}, st.SourcePaths)
	assert.True(t, st.BackupToCloud)
	assert.Equal(t, "FTP", st.StorageProvider)
	assert.Equal(t, "plain", st.Password)
	assert.Equal(t, 2121, st.FTPPort)
	assert.True(t, st.FTPTLS)
	assert.Equal(t, "/etc/secrets.json", st.ClientSecretsFile)

	m := st.RemoteConfig()
	assert.Equal(t, "ftp.example.com", m["host"])
	assert.Equal(t, "2121", m["port"])
	assert.Equal(t, "user", m["user"])
	assert.Equal(t, "plain", m["pass"])
	assert.Equal(t, "true", m["tls"])
	assert.Equal(t, "true", m["use_trash"])
}

func TestLoadSettingsObscuredPassword(t *testing.T) {
	s := newTestStore(t)
	stored := obscure.MustObscure("secret")
	require.NoError(t, s.Set(KeyPassword, stored))
	st, err := LoadSettings(s)
	require.NoError(t, err)
	assert.Equal(t, stored, st.Password)
	assert.Equal(t, stored, st.RemoteConfig()["pass"])
}

func TestLoadSettingsErrors(t *testing.T) {
	for _, test := range []struct {
		key   string
		value interface{}
	}{
		{KeyBackupToCloud, "maybe"},
		{KeyFTPPort, "twenty-one"},
		{KeySourcePath, []interface{}{"/ok", 3}},
		{KeyPassword, "obscured:!!"},
	} {
		s := newTestStore(t)
		require.NoError(t, s.Set(test.key, test.value))
		_, err := LoadSettings(s)
		assert.Error(t, err, test.key)
	}
}

func TestBackupRoot(t *testing.T) {
	st := &Settings{DestinationPath: "/mnt/usb", ArchiveFolder: "SafeArchive"}
	assert.Equal(t, filepath.Join("/mnt/usb", "SafeArchive"), st.BackupRoot())
}
