package drive

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/drive/v2"
	"google.golang.org/api/googleapi"
)

const (
	driveFolderType = "application/vnd.google-apps.folder"
	partialFields   = "id,title,mimeType,fileSize,labels,parents"
	listFields      = "items(" + partialFields + "),nextPageToken"
)

// query describes a search of the Drive
//
// Search params: https://developers.google.com/drive/api/v2/search-files
type query struct {
	parentID   string // only children of this folder
	title      string // only entries called this
	folderOnly bool   // only folders
}

// escape a title for use in a query
func escape(title string) string {
	// Escaping the backslash isn't documented but seems to work
	title = strings.Replace(title, `\`, `\\`, -1)
	return strings.Replace(title, `'`, `\'`, -1)
}

// String makes the q parameter for a files.list call. Trashed
// entries are always excluded.
func (q query) String() string {
	terms := []string{"trashed=false"}
	if q.parentID != "" {
		terms = append(terms, fmt.Sprintf("'%s' in parents", escape(q.parentID)))
	}
	if q.title != "" {
		terms = append(terms, fmt.Sprintf("title='%s'", escape(q.title)))
	}
	if q.folderOnly {
		terms = append(terms, fmt.Sprintf("mimeType='%s'", driveFolderType))
	}
	return strings.Join(terms, " and ")
}

// filesAPI is the part of the Drive API the remote uses
type filesAPI interface {
	// list returns one page of entries matching q
	list(ctx context.Context, q query, pageToken string) (*drive.FileList, error)
	// insert creates info, uploading media if it isn't nil
	insert(ctx context.Context, info *drive.File, media io.Reader) (*drive.File, error)
	// update replaces the content of the file with id
	update(ctx context.Context, id string, media io.Reader) (*drive.File, error)
	// trash moves the entry with id to the trash
	trash(ctx context.Context, id string) error
	// remove deletes the entry with id permanently
	remove(ctx context.Context, id string) error
	// about reads the user's quota and root folder
	about(ctx context.Context) (*drive.About, error)
}

// driveAPI implements filesAPI with a drive.Service
type driveAPI struct {
	svc       *drive.Service
	listChunk int64
	chunkSize int
}

func (a *driveAPI) list(ctx context.Context, q query, pageToken string) (*drive.FileList, error) {
	call := a.svc.Files.List().Q(q.String()).Fields(listFields).Context(ctx)
	if a.listChunk > 0 {
		call = call.MaxResults(a.listChunk)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	return call.Do()
}

func (a *driveAPI) insert(ctx context.Context, info *drive.File, media io.Reader) (*drive.File, error) {
	call := a.svc.Files.Insert(info).Fields(partialFields).Context(ctx)
	if media != nil {
		call = call.Media(media, googleapi.ChunkSize(a.chunkSize))
	}
	return call.Do()
}

func (a *driveAPI) update(ctx context.Context, id string, media io.Reader) (*drive.File, error) {
	return a.svc.Files.Update(id, &drive.File{}).
		Media(media, googleapi.ChunkSize(a.chunkSize)).
		Fields(partialFields).
		Context(ctx).
		Do()
}

func (a *driveAPI) trash(ctx context.Context, id string) error {
	_, err := a.svc.Files.Trash(id).Fields("id").Context(ctx).Do()
	return err
}

func (a *driveAPI) remove(ctx context.Context, id string) error {
	return a.svc.Files.Delete(id).Context(ctx).Do()
}

func (a *driveAPI) about(ctx context.Context) (*drive.About, error) {
	return a.svc.About.Get().Fields("rootFolderId,quotaBytesTotal,quotaBytesUsed,user").Context(ctx).Do()
}

// check interface
var _ filesAPI = (*driveAPI)(nil)
