// Package ftp backs up to FTP servers
package ftp

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/textproto"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/fs"
	"github.com/safearchive/safearchive/fs/config/configmap"
	"github.com/safearchive/safearchive/fs/config/obscure"
)

const (
	defaultPort   = 21
	anonymousUser = "anonymous"

	statusNeedAccount = 532 // need account for login
)

// Register with Fs
func init() {
	fs.Register(&fs.RegInfo{
		Name:        "ftp",
		Description: "FTP",
		NewRemote:   NewRemote,
		Options: []fs.Option{{
			Name: "host",
			Help: "FTP host to connect to, eg ftp.example.com or ftp.example.com:2121",
		}, {
			Name:    "port",
			Help:    "FTP port, leave blank to use default (21)",
			Default: strconv.Itoa(defaultPort),
		}, {
			Name: "user",
			Help: "FTP username, leave blank for anonymous",
		}, {
			Name:       "pass",
			Help:       "FTP password",
			IsPassword: true,
		}, {
			Name:    "tls",
			Help:    "Use explicit FTPS (AUTH TLS) to upgrade the connection",
			Default: "false",
		}, {
			Name:    "no_check_certificate",
			Help:    "Do not verify the TLS certificate of the server",
			Default: "false",
		}, {
			Name: "connect_timeout",
			Help: "Timeout for the control connection, leave blank to use --contimeout",
		}},
	})
}

// Options defines the configuration for this backend
type Options struct {
	Host              string
	Port              int
	User              string
	Pass              string
	TLS               bool
	SkipVerifyTLSCert bool
	ConnectTimeout    time.Duration
}

// address returns host:port to dial
func (opt *Options) address() string {
	if _, _, err := net.SplitHostPort(opt.Host); err == nil {
		return opt.Host
	}
	return net.JoinHostPort(opt.Host, strconv.Itoa(opt.Port))
}

// serverConn is the part of *ftp.ServerConn the remote uses
type serverConn interface {
	Login(user, password string) error
	MakeDir(path string) error
	ChangeDir(path string) error
	List(path string) ([]*ftp.Entry, error)
	Stor(path string, r io.Reader) error
	Delete(path string) error
	RemoveDirRecur(path string) error
	Quit() error
}

// dialFn opens the control connection
type dialFn func(ctx context.Context, opt *Options) (serverConn, error)

// Remote represents an FTP server
type Remote struct {
	name string     // name of this remote
	opt  Options    // parsed options
	dial dialFn     // opens connections
	conn serverConn // nil when disconnected
}

// parseOptions reads the Options from m
func parseOptions(m configmap.Getter) (opt Options, err error) {
	opt.Host = configmap.String(m, "host", "")
	opt.User = configmap.String(m, "user", "")
	if opt.Pass, err = obscure.RevealIfObscured(configmap.String(m, "pass", "")); err != nil {
		return opt, errors.Wrap(err, "couldn't reveal password")
	}
	port, err := configmap.Int(m, "port", defaultPort)
	if err != nil {
		return opt, err
	}
	opt.Port = int(port)
	if opt.TLS, err = configmap.Bool(m, "tls", false); err != nil {
		return opt, err
	}
	if opt.SkipVerifyTLSCert, err = configmap.Bool(m, "no_check_certificate", false); err != nil {
		return opt, err
	}
	if opt.ConnectTimeout, err = configmap.Duration(m, "connect_timeout", fs.Config.ConnectTimeout); err != nil {
		return opt, err
	}
	return opt, nil
}

// NewRemote constructs a Remote from the options in m. The server
// isn't contacted until Connect.
func NewRemote(name string, m configmap.Getter) (fs.Remote, error) {
	opt, err := parseOptions(m)
	if err != nil {
		return nil, err
	}
	return &Remote{
		name: name,
		opt:  opt,
		dial: dialServer,
	}, nil
}

// Name of the remote (as passed into NewRemote)
func (r *Remote) Name() string {
	return r.name
}

// String converts this Remote to a string
func (r *Remote) String() string {
	return "FTP server " + r.opt.address()
}

// dialServer opens a control connection with jlaffaye/ftp
func dialServer(ctx context.Context, opt *Options) (serverConn, error) {
	dialOpts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(opt.ConnectTimeout),
	}
	if opt.TLS {
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName:         opt.Host,
			InsecureSkipVerify: opt.SkipVerifyTLSCert,
		}))
	}
	c, err := ftp.Dial(opt.address(), dialOpts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Connect dials the server and logs in
func (r *Remote) Connect(ctx context.Context) error {
	if r.conn != nil {
		return nil
	}
	if r.opt.Host == "" {
		return fs.AuthenticationError(errors.New("no FTP hostname configured"))
	}
	fs.Debugf(r, "Connecting to FTP server")
	c, err := r.dial(ctx, &r.opt)
	if err != nil {
		return fs.ConnectivityError(errors.Wrapf(err, "failed to connect to %q", r.opt.address()))
	}
	user, pass := r.opt.User, r.opt.Pass
	if user == "" {
		user, pass = anonymousUser, anonymousUser
	}
	err = c.Login(user, pass)
	if err != nil {
		_ = c.Quit()
		err = errors.Wrapf(err, "failed to log in to %q as %q", r.opt.address(), user)
		if isLoginRefused(err) {
			return fs.AuthenticationError(err)
		}
		return fs.ConnectivityError(err)
	}
	r.conn = c
	return nil
}

// isLoginRefused reports whether the server turned down the
// credentials, rather than being unavailable (eg 421)
func isLoginRefused(err error) bool {
	var tpErr *textproto.Error
	if !errors.As(err, &tpErr) {
		return false
	}
	return tpErr.Code == ftp.StatusNotLoggedIn || tpErr.Code == statusNeedAccount
}

// Disconnect sends QUIT. It does nothing if not connected.
func (r *Remote) Disconnect(ctx context.Context) error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Quit()
	r.conn = nil
	if err != nil {
		return fs.ConnectivityError(errors.Wrap(err, "failed to quit"))
	}
	fs.Debugf(r, "Disconnected")
	return nil
}

func (r *Remote) checkConnected() error {
	if r.conn == nil {
		return fs.ErrorNotConnected
	}
	return nil
}

// list returns the entries in dir without . and ..
func (r *Remote) list(dir string) ([]*ftp.Entry, error) {
	entries, err := r.conn.List(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %q", dir)
	}
	out := entries[:0]
	for _, entry := range entries {
		// some servers return full paths
		entry.Name = path.Base(entry.Name)
		if entry.Name == "." || entry.Name == ".." || entry.Name == "/" {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

// dirExists reports whether mkdir failed with err because dir is
// already there.
//
// 521 is the RFC 959 reply for this but many servers use 550, so a
// 550 is checked by looking for the directory in its parent.
func (r *Remote) dirExists(dir string, err error) bool {
	var tpErr *textproto.Error
	if !errors.As(err, &tpErr) {
		return false
	}
	switch {
	case tpErr.Code == 521:
		return true
	case tpErr.Code != ftp.StatusFileUnavailable:
		return false
	case strings.Contains(strings.ToLower(tpErr.Msg), "exist"):
		return true
	}
	entries, listErr := r.list(path.Dir(dir))
	if listErr != nil {
		fs.Debugf(r, "Couldn't check for %q: %v", dir, listErr)
		return false
	}
	leaf := path.Base(dir)
	for _, entry := range entries {
		if entry.Name == leaf && entry.Type == ftp.EntryTypeFolder {
			return true
		}
	}
	return false
}

// mkdir makes dir, ignoring the failure if it already exists
func (r *Remote) mkdir(dir string) error {
	err := r.conn.MakeDir(dir)
	if err == nil {
		fs.Infof(r, "Created directory %q", dir)
		return nil
	}
	if r.dirExists(dir, err) {
		fs.Debugf(r, "mkdir %q: %v", dir, fs.ErrorDirectoryAlreadyExists)
		return nil
	}
	return errors.Wrapf(err, "mkdir %q failed", dir)
}

// ResolveOrCreateFolder makes the directory name inside parent, or
// at the top of the server if parent is nil, and changes into it.
func (r *Remote) ResolveOrCreateFolder(ctx context.Context, name string, parent *fs.Folder) (*fs.Folder, error) {
	if err := r.checkConnected(); err != nil {
		return nil, err
	}
	if parent != nil && parent.Path == "" {
		return nil, errors.Wrapf(fs.ErrorUnresolvedScope, "parent of %q", name)
	}
	dir := parent.Child(name)
	if err := r.mkdir(dir); err != nil {
		return nil, fs.TransferError(err)
	}
	if err := r.conn.ChangeDir(dir); err != nil {
		return nil, fs.TransferError(errors.Wrapf(err, "cwd %q failed", dir))
	}
	return &fs.Folder{
		Name: name,
		Path: dir,
	}, nil
}

// ResolveOrCreateFile looks for name in the listing of parent
func (r *Remote) ResolveOrCreateFile(ctx context.Context, name string, parent *fs.Folder) (*fs.File, error) {
	if err := r.checkConnected(); err != nil {
		return nil, err
	}
	if parent == nil || parent.Path == "" {
		return nil, errors.Wrapf(fs.ErrorUnresolvedScope, "parent of %q", name)
	}
	file := &fs.File{
		Name:   name,
		Parent: parent,
		Size:   -1,
	}
	entries, err := r.list(parent.Path)
	if err != nil {
		return nil, fs.TransferError(err)
	}
	for _, entry := range entries {
		if entry.Name != name {
			continue
		}
		if entry.Type == ftp.EntryTypeFolder {
			return nil, fs.TransferError(errors.Wrapf(fs.ErrorNameClash, "%q in %v", name, parent))
		}
		file.Exists = true
		file.Size = int64(entry.Size)
		break
	}
	return file, nil
}

// Upload stores localPath over file
func (r *Remote) Upload(ctx context.Context, file *fs.File, localPath string) (err error) {
	if err := r.checkConnected(); err != nil {
		return err
	}
	if file.Parent == nil || file.Parent.Path == "" {
		return errors.Wrapf(fs.ErrorUnresolvedScope, "parent of %q", file.Name)
	}
	in, err := os.Open(localPath)
	if err != nil {
		return fs.TransferError(errors.Wrap(err, "failed to open source"))
	}
	defer fs.CheckClose(in, &err)
	info, err := in.Stat()
	if err != nil {
		return fs.TransferError(errors.Wrap(err, "failed to stat source"))
	}
	remote := file.Parent.Child(file.Name)
	if err := r.conn.Stor(remote, in); err != nil {
		return fs.TransferError(errors.Wrapf(err, "failed to store %q", remote))
	}
	file.Size = info.Size()
	file.Exists = true
	return nil
}

// Sweep deletes every entry in scope not in names. Directories are
// removed recursively.
func (r *Remote) Sweep(ctx context.Context, scope *fs.Folder, names fs.NameSet) (deleted []string, err error) {
	if err := r.checkConnected(); err != nil {
		return nil, err
	}
	if scope == nil || scope.Path == "" || scope.Path == "/" {
		return nil, fs.ErrorUnresolvedScope
	}
	entries, err := r.list(scope.Path)
	if err != nil {
		return nil, fs.TransferError(err)
	}
	for _, entry := range entries {
		if names.Has(entry.Name) {
			continue
		}
		remote := scope.Child(entry.Name)
		if fs.Config.DryRun {
			fs.Logf(r, "Not deleting %q as --dry-run", remote)
			deleted = append(deleted, entry.Name)
			continue
		}
		if entry.Type == ftp.EntryTypeFolder {
			err = r.conn.RemoveDirRecur(remote)
		} else {
			err = r.conn.Delete(remote)
		}
		if err != nil {
			return deleted, fs.TransferError(errors.Wrapf(err, "failed to delete %q", remote))
		}
		fs.Infof(r, "Deleted %q", remote)
		deleted = append(deleted, entry.Name)
	}
	return deleted, nil
}

// Check the interfaces are satisfied
var (
	_ fs.Remote  = (*Remote)(nil)
	_ serverConn = (*ftp.ServerConn)(nil)
)
