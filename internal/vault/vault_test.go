package vault

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"meritlog.org/internal/tracker"
)

type sinkRecorder struct {
	files []tracker.FileDescriptor
}

func (s *sinkRecorder) AddFile(fd tracker.FileDescriptor) tracker.FileDescriptor {
	fd.ID = fmt.Sprintf("f%d", len(s.files))
	s.files = append(s.files, fd)
	return fd
}

func TestBindUploadsAndReportsDescriptor(t *testing.T) {
	remote := tracker.NewInMemory()
	sink := &sinkRecorder{}
	b := NewBinder(remote, sink)
	b.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }

	bound, ok := b.Bind(context.Background(), "u1", tracker.FileUpload{Name: "award.png", Folder: "Awards", Data: make([]byte, 2048)})
	if !ok || bound.Name != "award.png" || bound.ID != "f0" {
		t.Fatalf("expected the sink's descriptor, got %+v ok=%v", bound, ok)
	}
	if _, found := remote.BlobData(tracker.BucketEvidence, "u1/Awards/award.png"); !found {
		t.Fatalf("blob not written at deterministic path")
	}
	if len(sink.files) != 1 {
		t.Fatalf("expected one descriptor, got %d", len(sink.files))
	}
	fd := sink.files[0]
	if fd.Kind != tracker.FileImage || fd.Folder != "Awards" || fd.Path != "u1/Awards/award.png" {
		t.Fatalf("unexpected descriptor: %+v", fd)
	}
	if fd.UploadedOn != "Mar 01, 2024" || fd.Size != "2.0 kB" {
		t.Fatalf("unexpected display fields: %+v", fd)
	}
}

func TestBindOverwritesExistingBlob(t *testing.T) {
	remote := tracker.NewInMemory()
	b := NewBinder(remote, nil)
	ctx := context.Background()

	if _, ok := b.Bind(ctx, "u1", tracker.FileUpload{Name: "cv.pdf", Data: []byte("one")}); !ok {
		t.Fatalf("first bind failed")
	}
	if _, ok := b.Bind(ctx, "u1", tracker.FileUpload{Name: "cv.pdf", Data: []byte("two")}); !ok {
		t.Fatalf("second bind failed")
	}
	data, _ := remote.BlobData(tracker.BucketEvidence, "u1/cv.pdf")
	if string(data) != "two" {
		t.Fatalf("expected overwrite, got %q", data)
	}
}

func TestBindFailureReturnsNoName(t *testing.T) {
	remote := tracker.NewInMemory()
	remote.FailOn(tracker.OpBlobUpload, errors.New("bucket offline"))
	sink := &sinkRecorder{}
	b := NewBinder(remote, sink)

	bound, ok := b.Bind(context.Background(), "u1", tracker.FileUpload{Name: "cv.pdf", Data: []byte("x")})
	if ok || bound.Name != "" {
		t.Fatalf("expected no bound name, got %q ok=%v", bound.Name, ok)
	}
	if len(sink.files) != 0 {
		t.Fatalf("descriptor must not be appended on failure")
	}
	if remote.Calls(tracker.OpBlobUpload) != 1 {
		t.Fatalf("upload must not be retried")
	}
}

func TestBindStripsDirectoriesFromName(t *testing.T) {
	remote := tracker.NewInMemory()
	b := NewBinder(remote, nil)
	bound, ok := b.Bind(context.Background(), "u1", tracker.FileUpload{Name: "../../etc/passwd.pdf", Data: []byte("x")})
	if !ok || bound.Name != "passwd.pdf" {
		t.Fatalf("unexpected name %q ok=%v", bound.Name, ok)
	}
	if _, found := remote.BlobData(tracker.BucketEvidence, "u1/passwd.pdf"); !found {
		t.Fatalf("blob not stored under the user prefix")
	}
}

func TestExistsMatchesExactPath(t *testing.T) {
	remote := tracker.NewInMemory()
	ctx := context.Background()
	blobs := remote.Blobs(ctx, tracker.BucketEvidence)
	if err := blobs.Upload(ctx, "u1/cv.pdf.bak", []byte("x"), "application/octet-stream"); err != nil {
		t.Fatalf("upload: %v", err)
	}

	found, err := Exists(ctx, blobs, "u1/cv.pdf")
	if err != nil || found {
		t.Fatalf("prefix sibling must not count as existing: found=%v err=%v", found, err)
	}
	if err := blobs.Upload(ctx, "u1/cv.pdf", []byte("y"), "application/pdf"); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if found, err = Exists(ctx, blobs, "u1/cv.pdf"); err != nil || !found {
		t.Fatalf("expected blob to exist: found=%v err=%v", found, err)
	}

	remote.FailOn(tracker.OpBlobList, errors.New("bucket offline"))
	if _, err := Exists(ctx, blobs, "u1/cv.pdf"); err == nil {
		t.Fatalf("expected list error to surface")
	}
}

func TestDescriptorUsesPathSegments(t *testing.T) {
	cases := []struct {
		path     string
		ok       bool
		folder   string
		name     string
		wantKind tracker.FileKind
	}{
		{"u1/report.pdf", true, "", "report.pdf", tracker.FilePDF},
		{"u1/Awards/medal.JPG", true, "Awards", "medal.JPG", tracker.FileImage},
		{"u1/Awards-old/cert.pdf", true, "Awards-old", "cert.pdf", tracker.FilePDF},
		{"u2/report.pdf", false, "", "", ""},
		{"u1/a/b/c.pdf", false, "", "", ""},
		{"u1/", false, "", "", ""},
	}
	for _, tc := range cases {
		fd, ok := Descriptor("u1", tracker.BlobObject{Path: tc.path, Size: 10})
		if ok != tc.ok {
			t.Fatalf("%s: ok=%v, want %v", tc.path, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if fd.Folder != tc.folder || fd.Name != tc.name || fd.Kind != tc.wantKind {
			t.Fatalf("%s: unexpected descriptor %+v", tc.path, fd)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType("a.pdf"); got != "application/pdf" {
		t.Fatalf("unexpected pdf type %q", got)
	}
	if got := ContentType("noext"); got != "application/octet-stream" {
		t.Fatalf("unexpected default type %q", got)
	}
}
