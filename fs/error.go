// Errors and error handling

package fs

import (
	"fmt"
	"net"
	"net/url"

	"github.com/pkg/errors"
)

// Error categories returned by remotes and the sync engine.
//
// Errors returned by a Remote are wrapped so that
//
//	errors.Is(err, fs.ErrorTransfer)
//
// reports the category while errors.Cause still finds the underlying
// transport error.
var (
	ErrorAuthentication           = errors.New("authentication failed")
	ErrorMissingCredentialsConfig = errors.New("client secrets config missing")
	ErrorConnectivity             = errors.New("remote unreachable")
	ErrorTransfer                 = errors.New("transfer failed")
	ErrorDirectoryAlreadyExists   = errors.New("directory already exists")
	ErrorNotConnected             = errors.New("remote not connected")
	ErrorRunInProgress            = errors.New("a sync run is already in progress")
	ErrorDestinationUnreachable   = errors.New("destination unreachable")
	ErrorUnresolvedScope          = errors.New("refusing to sweep an unresolved folder")
	ErrorRemoteNotFound           = errors.New("storage provider not found")
	ErrorDirNotFound              = errors.New("directory not found")
	ErrorDuplicateSource          = errors.New("source folders share a name")
	ErrorNameClash                = errors.New("a folder has the same name as the file")
)

// categoryError marks err as belonging to category
type categoryError struct {
	category error
	err      error
}

// Error satisfies the error interface
func (e *categoryError) Error() string {
	return fmt.Sprintf("%v: %v", e.category, e.err)
}

// Cause returns the underlying error for errors.Cause
func (e *categoryError) Cause() error {
	return e.err
}

// Unwrap returns the underlying error
func (e *categoryError) Unwrap() error {
	return e.err
}

// Is reports whether target is the category of this error
func (e *categoryError) Is(target error) bool {
	return target == e.category
}

// Categorize wraps err so that errors.Is(err, category) is true.
//
// It returns nil if err is nil and returns err unchanged if it is
// already in category.
func Categorize(category, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, category) {
		return err
	}
	return &categoryError{category: category, err: err}
}

// AuthenticationError marks err as an authentication failure
func AuthenticationError(err error) error {
	return Categorize(ErrorAuthentication, err)
}

// ConnectivityError marks err as a failure to reach the remote
func ConnectivityError(err error) error {
	return Categorize(ErrorConnectivity, err)
}

// TransferError marks err as a failed upload, delete or list call
func TransferError(err error) error {
	return Categorize(ErrorTransfer, err)
}

// Retry is an optional interface for error as to whether the
// operation should be retried at a high level.
type Retry interface {
	error
	Retry() bool
}

// plainRetryError is an error wrapped so it will retry
type plainRetryError struct {
	error
}

// Retry interface
func (err plainRetryError) Retry() bool {
	return true
}

// Cause returns the underlying error
func (err plainRetryError) Cause() error {
	return err.error
}

// Unwrap returns the underlying error
func (err plainRetryError) Unwrap() error {
	return err.error
}

// Check interface
var _ Retry = plainRetryError{(error)(nil)}

// RetryError makes an error which indicates it would like to be retried
func RetryError(err error) error {
	if err == nil {
		err = errors.New("needs retry")
	}
	return plainRetryError{err}
}

// IsRetryError returns true if err conforms to the Retry interface
// and calling the Retry method returns true.
func IsRetryError(err error) bool {
	var r Retry
	if errors.As(err, &r) {
		return r.Retry()
	}
	return false
}

// IsNetworkError returns true if err looks like it came from the
// network layer rather than from the remote itself.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
