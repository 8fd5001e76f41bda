package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
	"github.com/safearchive/safearchive/fs/config/configmap"
	"github.com/safearchive/safearchive/fs/config/obscure"
)

// Keys in the settings file
const (
	KeySourcePath        = "source_path"
	KeyDestinationPath   = "destination_path"
	KeyBackupToCloud     = "backup_to_cloud"
	KeyNotifications     = "notifications"
	KeyAppearanceMode    = "appearance_mode"
	KeyColorTheme        = "color_theme"
	KeyBackupExpiryDate  = "backup_expiry_date"
	KeyStorageProvider   = "storage_provider"
	KeyHostname          = "HOSTNAME"
	KeyUsername          = "USERNAME"
	KeyPassword          = "PASSWORD"
	KeyClientSecretsFile = "client_secrets_file"
	KeyTokenFile         = "token_file"
	KeyFTPPort           = "ftp_port"
	KeyFTPTLS            = "ftp_tls"
	KeyArchiveFolder     = "archive_folder"
	KeyDriveUseTrash     = "drive_use_trash"
)

// Default values
const (
	DefaultStorageProvider   = "Google Drive"
	DefaultClientSecretsFile = "client_secrets.json"
	DefaultTokenFile         = "token.json"
	DefaultFTPPort           = 21
)

// Defaults returns the contents of a freshly written settings file
func Defaults() map[string]interface{} {
	var sources []interface{}
	for _, dir := range []string{"~/Desktop", "~/Documents", "~/Downloads"} {
		expanded, err := homedir.Expand(dir)
		if err != nil {
			fs.Debugf(nil, "Couldn't expand %q: %v", dir, err)
			expanded = dir
		}
		sources = append(sources, filepath.ToSlash(expanded)+"/")
	}
	root, err := filepath.Abs(string(os.PathSeparator))
	if err != nil {
		root = "/"
	}
	return map[string]interface{}{
		"_comments": map[string]interface{}{
			KeySourcePath:       "List of source paths (local folders) for backups (type: list with strings)",
			KeyDestinationPath:  "Destination path (storage media) for backups (type: string)",
			KeyBackupToCloud:    "Flag indicating whether to backup to the cloud (specify: storage_provider) (type: boolean)",
			KeyNotifications:    "Enable or disable notifications (type: boolean)",
			KeyAppearanceMode:   "Appearance mode for the application (type: string)",
			KeyColorTheme:       "Color theme for the application (type: string)",
			KeyBackupExpiryDate: "Expiry date for the backups in the storage media (type: string)",
			KeyStorageProvider:  "Storage provider for backups (Google Drive / FTP) (type: string)",
			KeyHostname:         "Hostname for FTP configuration (type: string)",
			KeyUsername:         "Username for FTP configuration (type: string)",
			KeyPassword:         "Password for FTP configuration (type: string)",
		},
		KeySourcePath:       sources,
		KeyDestinationPath:  filepath.ToSlash(root),
		KeyBackupToCloud:    false,
		KeyNotifications:    true,
		KeyAppearanceMode:   "dark",
		KeyColorTheme:       "blue",
		KeyBackupExpiryDate: "Forever (default)",
		KeyStorageProvider:  DefaultStorageProvider,
		KeyHostname:         "",
		KeyUsername:         "",
		KeyPassword:         "",
	}
}

// Settings is a typed view of the Store
type Settings struct {
	SourcePaths       []string
	DestinationPath   string
	BackupToCloud     bool
	Notifications     bool
	BackupExpiryDate  string
	StorageProvider   string
	Hostname          string
	Username          string
	Password          string // as stored, possibly obscured
	ClientSecretsFile string
	TokenFile         string
	FTPPort           int
	FTPTLS            bool
	ArchiveFolder     string
	DriveUseTrash     bool
}

// LoadSettings makes a Settings from the store.
//
// Relative client secrets and token paths are taken relative to the
// directory of the settings file.
func LoadSettings(s *Store) (*Settings, error) {
	var err error
	st := &Settings{
		DestinationPath:   getString(s, KeyDestinationPath, "/"),
		BackupExpiryDate:  getString(s, KeyBackupExpiryDate, ""),
		StorageProvider:   getString(s, KeyStorageProvider, DefaultStorageProvider),
		Hostname:          getString(s, KeyHostname, ""),
		Username:          getString(s, KeyUsername, ""),
		ClientSecretsFile: getString(s, KeyClientSecretsFile, DefaultClientSecretsFile),
		TokenFile:         getString(s, KeyTokenFile, DefaultTokenFile),
		ArchiveFolder:     getString(s, KeyArchiveFolder, fs.DefaultArchiveFolder),
	}
	if st.SourcePaths, err = getStrings(s, KeySourcePath); err != nil {
		return nil, err
	}
	for i, p := range st.SourcePaths {
		if st.SourcePaths[i], err = homedir.Expand(p); err != nil {
			return nil, errors.Wrapf(err, "bad source path %q", p)
		}
	}
	if st.DestinationPath, err = homedir.Expand(st.DestinationPath); err != nil {
		return nil, errors.Wrapf(err, "bad destination path %q", st.DestinationPath)
	}
	if st.BackupToCloud, err = getBool(s, KeyBackupToCloud, false); err != nil {
		return nil, err
	}
	if st.Notifications, err = getBool(s, KeyNotifications, true); err != nil {
		return nil, err
	}
	if st.FTPTLS, err = getBool(s, KeyFTPTLS, false); err != nil {
		return nil, err
	}
	if st.DriveUseTrash, err = getBool(s, KeyDriveUseTrash, true); err != nil {
		return nil, err
	}
	if st.FTPPort, err = getInt(s, KeyFTPPort, DefaultFTPPort); err != nil {
		return nil, err
	}
	// kept as stored, the ftp backend reveals it
	st.Password = getString(s, KeyPassword, "")
	if _, err = obscure.RevealIfObscured(st.Password); err != nil {
		return nil, errors.Wrap(err, "bad FTP password")
	}
	base := filepath.Dir(s.Path())
	st.ClientSecretsFile = relativeTo(base, st.ClientSecretsFile)
	st.TokenFile = relativeTo(base, st.TokenFile)
	return st, nil
}

// RemoteConfig returns the options for the storage provider's remote
func (st *Settings) RemoteConfig() configmap.Simple {
	return configmap.Simple{
		"client_secrets_file": st.ClientSecretsFile,
		"token_file":          st.TokenFile,
		"use_trash":           strconv.FormatBool(st.DriveUseTrash),
		"host":                st.Hostname,
		"port":                strconv.Itoa(st.FTPPort),
		"user":                st.Username,
		"pass":                st.Password,
		"tls":                 strconv.FormatBool(st.FTPTLS),
	}
}

// BackupRoot returns the folder on the destination holding the backups
func (st *Settings) BackupRoot() string {
	return filepath.Join(st.DestinationPath, st.ArchiveFolder)
}

func relativeTo(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if expanded, err := homedir.Expand(p); err == nil && expanded != p {
		return expanded
	}
	return filepath.Join(base, p)
}

func getString(s *Store, key, def string) string {
	v, ok := s.Get(key)
	if !ok || v == nil {
		return def
	}
	switch x := v.(type) {
	case string:
		return x
	default:
		return FormatValue(x)
	}
}

func getBool(s *Store, key string, def bool) (bool, error) {
	v, ok := s.Get(key)
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		if x == "" {
			return def, nil
		}
		b, err := strconv.ParseBool(strings.ToLower(x))
		if err != nil {
			return def, errors.Wrapf(err, "bad boolean for %q", key)
		}
		return b, nil
	}
	return def, errors.Errorf("bad boolean for %q: %v", key, v)
}

func getInt(s *Store, key string, def int) (int, error) {
	v, ok := s.Get(key)
	if !ok || v == nil {
		return def, nil
	}
	var text string
	switch x := v.(type) {
	case json.Number:
		text = x.String()
	case float64:
		return int(x), nil
	case int:
		return x, nil
	case string:
		if x == "" {
			return def, nil
		}
		text = x
	default:
		return def, errors.Errorf("bad integer for %q: %v", key, v)
	}
	i, err := strconv.Atoi(text)
	if err != nil {
		return def, errors.Wrapf(err, "bad integer for %q", key)
	}
	return i, nil
}

func getStrings(s *Store, key string) ([]string, error) {
	v, ok := s.Get(key)
	if !ok || v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case []string:
		return x, nil
	case []interface{}:
		out := make([]string, 0, len(x))
		for _, item := range x {
			str, ok := item.(string)
			if !ok {
				return nil, errors.Errorf("bad list for %q: item %v isn't a string", key, item)
			}
			out = append(out, str)
		}
		return out, nil
	case string:
		if x == "" {
			return nil, nil
		}
		return []string{x}, nil
	}
	return nil, errors.Errorf("bad list for %q: %v", key, v)
}
