// Package vault binds uploaded evidence files to the blob store and to the session's
// file collection.
package vault

import (
	"context"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"meritlog.org/internal/audit"
	"meritlog.org/internal/obs"
	"meritlog.org/internal/tracker"
)

const uploadedOnLayout = "Jan 02, 2006"

// FileSink receives descriptors for blobs that were uploaded successfully.
type FileSink interface {
	AddFile(fd tracker.FileDescriptor) tracker.FileDescriptor
}

// Binder uploads evidence into the evidence bucket.
type Binder struct {
	remote tracker.Remote
	sink   FileSink
	now    func() time.Time
}

// NewBinder returns a binder writing to remote and reporting to sink.
func NewBinder(remote tracker.Remote, sink FileSink) *Binder {
	return &Binder{
		remote: remote,
		sink:   sink,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Bind uploads up for userID, overwriting any blob at the same path. On success it
// hands a descriptor to the sink and returns the descriptor the sink recorded. On
// failure it returns ok=false; callers continue without a file reference.
func (b *Binder) Bind(ctx context.Context, userID string, up tracker.FileUpload) (fd tracker.FileDescriptor, ok bool) {
	name := CleanName(up.Name)
	if userID == "" || name == "" {
		return tracker.FileDescriptor{}, false
	}
	folder := CleanFolder(up.Folder)
	key := Path(userID, folder, name)

	err := b.remote.Blobs(ctx, tracker.BucketEvidence).Upload(ctx, key, up.Data, ContentType(name))
	obs.RecordMutation(tracker.OpBlobUpload, err)
	if err != nil {
		audit.Failure(ctx, tracker.OpBlobUpload, err, map[string]any{"path": key})
		return tracker.FileDescriptor{}, false
	}

	fd = tracker.FileDescriptor{
		Name:       name,
		Kind:       KindFor(name),
		UploadedOn: b.now().Format(uploadedOnLayout),
		Size:       humanize.Bytes(uint64(len(up.Data))),
		Path:       key,
		Folder:     folder,
	}
	if b.sink != nil {
		fd = b.sink.AddFile(fd)
	}
	return fd, true
}

// Exists reports whether a blob is stored at exactly path.
func Exists(ctx context.Context, blobs tracker.BlobStore, path string) (bool, error) {
	objs, err := blobs.List(ctx, path)
	if err != nil {
		return false, err
	}
	for _, o := range objs {
		if o.Path == path {
			return true, nil
		}
	}
	return false, nil
}

// Path is the deterministic blob key: {userID}/{folder/}{name}.
func Path(userID, folder, name string) string {
	if folder == "" {
		return userID + "/" + name
	}
	return userID + "/" + folder + "/" + name
}

// Descriptor builds a descriptor for a listed blob under userID's prefix. The folder is
// the single path segment between the user prefix and the file name, as written by Path.
func Descriptor(userID string, obj tracker.BlobObject) (tracker.FileDescriptor, bool) {
	rest, found := strings.CutPrefix(obj.Path, userID+"/")
	if !found || rest == "" {
		return tracker.FileDescriptor{}, false
	}
	var folder, name string
	switch parts := strings.Split(rest, "/"); len(parts) {
	case 1:
		name = parts[0]
	case 2:
		folder, name = parts[0], parts[1]
	default:
		return tracker.FileDescriptor{}, false
	}
	if name == "" {
		return tracker.FileDescriptor{}, false
	}
	fd := tracker.FileDescriptor{
		Name:   name,
		Kind:   KindFor(name),
		Size:   humanize.Bytes(uint64(obj.Size)),
		Path:   obj.Path,
		Folder: folder,
	}
	if !obj.UpdatedAt.IsZero() {
		fd.UploadedOn = obj.UpdatedAt.Format(uploadedOnLayout)
	}
	return fd, true
}

// CleanName strips directories from a client-supplied file name.
func CleanName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." {
		return ""
	}
	return base
}

// CleanFolder normalizes a folder tag to a single path segment.
func CleanFolder(folder string) string {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" || folder == "." || folder == ".." {
		return ""
	}
	return strings.ReplaceAll(folder, "/", "-")
}

var imageExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".heic": true, ".svg": true,
}

// KindFor infers the file kind from the extension.
func KindFor(name string) tracker.FileKind {
	if imageExt[strings.ToLower(path.Ext(name))] {
		return tracker.FileImage
	}
	return tracker.FilePDF
}

// ContentType guesses the MIME type from the extension.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(name))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
