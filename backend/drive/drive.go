// Package drive backs up to Google Drive using the v2 API
package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/safearchive/safearchive/dircache"
	"github.com/safearchive/safearchive/fs"
	"github.com/safearchive/safearchive/fs/config/configmap"
	"github.com/safearchive/safearchive/lib/oauthutil"
	"github.com/safearchive/safearchive/pacer"
	"google.golang.org/api/drive/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Constants
const (
	minSleep         = 10 * time.Millisecond
	maxSleep         = 2 * time.Second
	decayConstant    = 2 // bigger for slower decay, exponential
	attackConstant   = 0 // jump straight to maxSleep when rate limited
	rootAlias        = "root"
	minChunkSize     = 256 * 1024
	defaultChunkSize = 8 * 1024 * 1024
	defaultListChunk = 1000
)

// Register with Fs
func init() {
	fs.Register(&fs.RegInfo{
		Name:        "drive",
		Description: "Google Drive",
		NewRemote:   NewRemote,
		Options: []fs.Option{{
			Name:    "client_secrets_file",
			Help:    "Google installed app client secrets JSON file.",
			Default: "client_secrets.json",
		}, {
			Name:    "token_file",
			Help:    "File the OAuth token is kept in after the first authorization.",
			Default: "token.json",
		}, {
			Name:    "use_trash",
			Help:    "Send files to the trash instead of deleting permanently.",
			Default: "true",
		}, {
			Name:    "chunk_size",
			Help:    "Upload chunk size in bytes. Must be a power of 2 >= 256k.",
			Default: fmt.Sprint(defaultChunkSize),
		}, {
			Name:    "list_chunk",
			Help:    "Size of listing chunk 100-1000. 0 to disable.",
			Default: fmt.Sprint(defaultListChunk),
		}, {
			Name:    "no_browser",
			Help:    "Print the authorization link instead of opening a browser.",
			Default: "false",
		}},
	})
}

// Options defines the configuration for this backend
type Options struct {
	ClientSecretsFile string
	TokenFile         string
	UseTrash          bool
	ChunkSize         int64
	ListChunk         int64
	NoBrowser         bool
}

// Remote represents a Google Drive account
type Remote struct {
	name     string                                      // name of this remote
	opt      Options                                     // parsed options
	connect  func(ctx context.Context) (filesAPI, error) // makes the API client
	api      filesAPI                                    // nil when disconnected
	rootID   string                                      // ID of the root folder
	dirCache *dircache.DirCache                          // folder IDs found this session
	pacer    *pacer.Pacer                                // To pace the API calls
}

// Returns true of x is a power of 2 or zero
func isPowerOfTwo(x int64) bool {
	switch {
	case x == 0:
		return true
	case x < 0:
		return false
	default:
		return (x & (x - 1)) == 0
	}
}

// parseOptions reads the Options from m
func parseOptions(m configmap.Getter) (opt Options, err error) {
	opt.ClientSecretsFile = configmap.String(m, "client_secrets_file", "client_secrets.json")
	opt.TokenFile = configmap.String(m, "token_file", "token.json")
	if opt.UseTrash, err = configmap.Bool(m, "use_trash", true); err != nil {
		return opt, err
	}
	if opt.NoBrowser, err = configmap.Bool(m, "no_browser", false); err != nil {
		return opt, err
	}
	if opt.ChunkSize, err = configmap.Int(m, "chunk_size", defaultChunkSize); err != nil {
		return opt, err
	}
	if opt.ListChunk, err = configmap.Int(m, "list_chunk", defaultListChunk); err != nil {
		return opt, err
	}
	if !isPowerOfTwo(opt.ChunkSize) {
		return opt, errors.Errorf("drive: chunk size %d isn't a power of two", opt.ChunkSize)
	}
	if opt.ChunkSize < minChunkSize {
		return opt, errors.Errorf("drive: chunk size can't be less than 256k - was %d", opt.ChunkSize)
	}
	return opt, nil
}

// NewRemote constructs a Remote from the options in m. Nothing is
// contacted until Connect.
func NewRemote(name string, m configmap.Getter) (fs.Remote, error) {
	opt, err := parseOptions(m)
	if err != nil {
		return nil, err
	}
	return newRemote(name, opt), nil
}

func newRemote(name string, opt Options) *Remote {
	r := &Remote{
		name:  name,
		opt:   opt,
		pacer: pacer.New(
			pacer.MinSleep(minSleep),
			pacer.MaxSleep(maxSleep),
			pacer.DecayConstant(decayConstant),
			pacer.AttackConstant(attackConstant),
			pacer.Retries(fs.Config.LowLevelRetries),
			pacer.TPSLimit(fs.Config.TPSLimit, fs.Config.TPSLimitBurst),
		),
	}
	r.connect = r.newAPI
	return r
}

// Name of the remote (as passed into NewRemote)
func (r *Remote) Name() string {
	return r.name
}

// String converts this Remote to a string
func (r *Remote) String() string {
	return "Google Drive"
}

// newAPI authorizes with OAuth and makes the Drive client
func (r *Remote) newAPI(ctx context.Context) (filesAPI, error) {
	config, err := oauthutil.LoadConfig(r.opt.ClientSecretsFile, drive.DriveScope)
	if err != nil {
		return nil, err
	}
	client, _, err := oauthutil.NewClient(ctx, config, r.opt.TokenFile, &oauthutil.Options{NoBrowser: r.opt.NoBrowser})
	if err != nil {
		return nil, err
	}
	svc, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't create Drive client")
	}
	return &driveAPI{
		svc:       svc,
		listChunk: r.opt.ListChunk,
		chunkSize: int(r.opt.ChunkSize),
	}, nil
}

// Authorize runs the consent flow for the remote configured by m
// and saves the token, replacing any token already there.
func Authorize(ctx context.Context, m configmap.Getter) error {
	opt, err := parseOptions(m)
	if err != nil {
		return err
	}
	config, err := oauthutil.LoadConfig(opt.ClientSecretsFile, drive.DriveScope)
	if err != nil {
		return err
	}
	token, err := oauthutil.Authorize(ctx, config, &oauthutil.Options{NoBrowser: opt.NoBrowser})
	if err != nil {
		return err
	}
	if err := oauthutil.WriteToken(opt.TokenFile, token); err != nil {
		return err
	}
	fs.Logf(nil, "Saved token to %q", opt.TokenFile)
	return nil
}

// shouldRetry determines whether a given err rates being retried
func shouldRetry(err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	if fs.IsRetryError(err) || fs.IsNetworkError(err) {
		return true, err
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code >= 500 && gerr.Code < 600 {
			// All 5xx errors should be retried
			return true, err
		}
		if gerr.Code == http.StatusTooManyRequests {
			return true, err
		}
		if len(gerr.Errors) > 0 {
			reason := gerr.Errors[0].Reason
			if reason == "rateLimitExceeded" || reason == "userRateLimitExceeded" {
				return true, err
			}
		}
	}
	return false, err
}

// classifyConnectError sorts a failure to connect into the error
// categories
func classifyConnectError(err error) error {
	if errors.Is(err, fs.ErrorMissingCredentialsConfig) || errors.Is(err, fs.ErrorAuthentication) {
		return err
	}
	// still rate limited after the retries
	if fs.IsRetryError(err) {
		return fs.ConnectivityError(err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusUnauthorized || gerr.Code == http.StatusForbidden) {
		return fs.AuthenticationError(err)
	}
	return fs.ConnectivityError(err)
}

// Connect authorizes with Google, running the consent flow if there
// is no saved token, and checks the session by reading About.
func (r *Remote) Connect(ctx context.Context) error {
	if r.api != nil {
		return nil
	}
	api, err := r.connect(ctx)
	if err != nil {
		return classifyConnectError(err)
	}
	var about *drive.About
	err = r.pacer.Call(ctx, func() (bool, error) {
		about, err = api.about(ctx)
		return shouldRetry(err)
	})
	if err != nil {
		return classifyConnectError(errors.Wrap(err, "couldn't read info about Drive"))
	}
	r.api = api
	r.rootID = about.RootFolderId
	if r.rootID == "" {
		r.rootID = rootAlias
	}
	r.dirCache = dircache.New(r)
	fs.Debugf(r, "Connected with root folder %q", r.rootID)
	return nil
}

// Disconnect forgets the session and the folders found during it
func (r *Remote) Disconnect(ctx context.Context) error {
	if r.api == nil {
		return nil
	}
	r.api = nil
	fs.Debugf(r, "Disconnected, forgetting %d folders", r.dirCache.Len())
	r.dirCache.Flush()
	return nil
}

func (r *Remote) checkConnected() error {
	if r.api == nil {
		return fs.ErrorNotConnected
	}
	return nil
}

// listFn is called on every item found by list
//
// Should return true to finish processing
type listFn func(*drive.File) bool

// list calls fn on every entry matching q
//
// If fn ever returns true then it early exits with found = true
func (r *Remote) list(ctx context.Context, q query, fn listFn) (found bool, err error) {
	pageToken := ""
	for {
		var files *drive.FileList
		err = r.pacer.Call(ctx, func() (bool, error) {
			files, err = r.api.list(ctx, q, pageToken)
			return shouldRetry(err)
		})
		if err != nil {
			return false, errors.Wrap(err, "couldn't list directory")
		}
		for _, item := range files.Items {
			if item.Labels != nil && item.Labels.Trashed {
				continue
			}
			if fn(item) {
				return true, nil
			}
		}
		if files.NextPageToken == "" {
			return false, nil
		}
		pageToken = files.NextPageToken
	}
}

// FindLeaf finds a folder of name leaf in the folder with ID pathID
func (r *Remote) FindLeaf(ctx context.Context, pathID, leaf string) (pathIDOut string, found bool, err error) {
	found, err = r.list(ctx, query{parentID: pathID, title: leaf, folderOnly: true}, func(item *drive.File) bool {
		if item.Title == leaf {
			pathIDOut = item.Id
			return true
		}
		return false
	})
	return pathIDOut, found, err
}

// CreateDir makes a folder with pathID as parent and name leaf
func (r *Remote) CreateDir(ctx context.Context, pathID, leaf string) (newID string, err error) {
	createInfo := &drive.File{
		Title:    leaf,
		MimeType: driveFolderType,
		Parents:  []*drive.ParentReference{{Id: pathID}},
	}
	var info *drive.File
	err = r.pacer.Call(ctx, func() (bool, error) {
		info, err = r.api.insert(ctx, createInfo, nil)
		return shouldRetry(err)
	})
	if err != nil {
		return "", err
	}
	return info.Id, nil
}

// ResolveOrCreateFolder finds the folder name inside parent, making
// it if needed. The first match wins if there are duplicates.
func (r *Remote) ResolveOrCreateFolder(ctx context.Context, name string, parent *fs.Folder) (*fs.Folder, error) {
	if err := r.checkConnected(); err != nil {
		return nil, err
	}
	parentID := r.rootID
	if parent != nil {
		if parent.ID == "" {
			return nil, errors.Wrapf(fs.ErrorUnresolvedScope, "parent of %q", name)
		}
		parentID = parent.ID
	}
	id, created, err := r.dirCache.FindOrCreate(ctx, parentID, name, true)
	if err != nil {
		return nil, fs.TransferError(err)
	}
	folder := &fs.Folder{
		ID:       id,
		Name:     name,
		ParentID: parentID,
		Path:     parent.Child(name),
	}
	if created {
		fs.Infof(r, "Created folder %v", folder)
	}
	return folder, nil
}

// ResolveOrCreateFile finds the file name in parent
func (r *Remote) ResolveOrCreateFile(ctx context.Context, name string, parent *fs.Folder) (*fs.File, error) {
	if err := r.checkConnected(); err != nil {
		return nil, err
	}
	if parent == nil || parent.ID == "" {
		return nil, errors.Wrapf(fs.ErrorUnresolvedScope, "parent of %q", name)
	}
	file := &fs.File{
		Name:   name,
		Parent: parent,
		Size:   -1,
	}
	clash := false
	_, err := r.list(ctx, query{parentID: parent.ID, title: name}, func(item *drive.File) bool {
		if item.Title != name {
			return false
		}
		if item.MimeType == driveFolderType {
			clash = true
			return false
		}
		if !file.Exists {
			file.ID = item.Id
			file.Size = item.FileSize
			file.Exists = true
		}
		return false
	})
	if err != nil {
		return nil, fs.TransferError(err)
	}
	// uploading would leave two entries with the same name
	if clash {
		return nil, fs.TransferError(errors.Wrapf(fs.ErrorNameClash, "%q in %v", name, parent))
	}
	return file, nil
}

// Upload replaces the content of file with localPath
func (r *Remote) Upload(ctx context.Context, file *fs.File, localPath string) (err error) {
	if err := r.checkConnected(); err != nil {
		return err
	}
	if file.Parent == nil || file.Parent.ID == "" {
		return errors.Wrapf(fs.ErrorUnresolvedScope, "parent of %q", file.Name)
	}
	in, err := os.Open(localPath)
	if err != nil {
		return fs.TransferError(errors.Wrap(err, "failed to open source"))
	}
	defer fs.CheckClose(in, &err)
	var info *drive.File
	err = r.pacer.Call(ctx, func() (bool, error) {
		// rewind for every try
		if _, err := in.Seek(0, io.SeekStart); err != nil {
			return false, err
		}
		if file.Exists && file.ID != "" {
			info, err = r.api.update(ctx, file.ID, in)
		} else {
			createInfo := &drive.File{
				Title:   file.Name,
				Parents: []*drive.ParentReference{{Id: file.Parent.ID}},
			}
			info, err = r.api.insert(ctx, createInfo, in)
		}
		return shouldRetry(err)
	})
	if err != nil {
		return fs.TransferError(errors.Wrapf(err, "failed to upload %v", file))
	}
	file.ID = info.Id
	file.Size = info.FileSize
	file.Exists = true
	return nil
}

// Sweep trashes, or deletes if use_trash is off, every child of scope
// not in names
func (r *Remote) Sweep(ctx context.Context, scope *fs.Folder, names fs.NameSet) (deleted []string, err error) {
	if err := r.checkConnected(); err != nil {
		return nil, err
	}
	if scope == nil || scope.ID == "" {
		return nil, fs.ErrorUnresolvedScope
	}
	var orphans []*drive.File
	_, err = r.list(ctx, query{parentID: scope.ID}, func(item *drive.File) bool {
		if !names.Has(item.Title) {
			orphans = append(orphans, item)
		}
		return false
	})
	if err != nil {
		return nil, fs.TransferError(err)
	}
	for _, item := range orphans {
		remote := scope.Child(item.Title)
		if fs.Config.DryRun {
			fs.Logf(r, "Not deleting %s as --dry-run", remote)
			deleted = append(deleted, item.Title)
			continue
		}
		err = r.pacer.Call(ctx, func() (bool, error) {
			if r.opt.UseTrash {
				err = r.api.trash(ctx, item.Id)
			} else {
				err = r.api.remove(ctx, item.Id)
			}
			return shouldRetry(err)
		})
		if err != nil {
			return deleted, fs.TransferError(errors.Wrapf(err, "failed to delete %s", remote))
		}
		if r.opt.UseTrash {
			fs.Infof(r, "Trashed %s", remote)
		} else {
			fs.Infof(r, "Deleted %s", remote)
		}
		deleted = append(deleted, item.Title)
	}
	return deleted, nil
}

// About gets quota information. It isn't retried.
func (r *Remote) About(ctx context.Context) (usage *fs.Usage, err error) {
	if err := r.checkConnected(); err != nil {
		return nil, err
	}
	var about *drive.About
	// quota is only informational so don't wait out a rate limit
	err = r.pacer.CallNoRetry(ctx, func() (bool, error) {
		about, err = r.api.about(ctx)
		return shouldRetry(err)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get Drive about")
	}
	return &fs.Usage{
		Used:  about.QuotaBytesUsed,
		Total: about.QuotaBytesTotal,
	}, nil
}

// Check the interfaces are satisfied
var (
	_ fs.Remote          = (*Remote)(nil)
	_ fs.Abouter         = (*Remote)(nil)
	_ dircache.DirCacher = (*Remote)(nil)
)
