package execution

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func TestFileStager_StageIn(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.fastq.gz")
	if err := os.WriteFile(src, []byte("reads"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "B", "B.fastq.gz")

	if err := NewFileStager().StageIn(context.Background(), "file://"+src, dst); err != nil {
		t.Fatalf("StageIn failed: %v", err)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "reads" {
		t.Errorf("content = %q", got)
	}
}

func TestFileStager_MissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "out")
	if err := NewFileStager().StageIn(context.Background(), filepath.Join(dir, "nope"), dst); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Error("destination should not exist")
	}
}

type recordingStager struct {
	calls []string
}

func (r *recordingStager) StageIn(_ context.Context, location, _ string) error {
	r.calls = append(r.calls, location)
	return nil
}

func TestCompositeStager_Routing(t *testing.T) {
	httpStager := &recordingStager{}
	fallback := &recordingStager{}
	s := NewCompositeStager(map[string]Stager{"https": httpStager}, fallback)

	ctx := context.Background()
	if err := s.StageIn(ctx, "https://example.org/a", "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.StageIn(ctx, "/local/b", "b"); err != nil {
		t.Fatal(err)
	}
	if len(httpStager.calls) != 1 || httpStager.calls[0] != "https://example.org/a" {
		t.Errorf("https calls = %v", httpStager.calls)
	}
	if len(fallback.calls) != 1 || fallback.calls[0] != "/local/b" {
		t.Errorf("fallback calls = %v", fallback.calls)
	}

	noFallback := NewCompositeStager(nil, nil)
	if err := noFallback.StageIn(ctx, "s3://bucket/key", "k"); err == nil {
		t.Error("expected error without handler")
	}
}

type fakeDownloader struct {
	bucket, key string
	data        []byte
	err         error
}

func (f *fakeDownloader) Download(_ context.Context, w io.WriterAt, input *s3.GetObjectInput, _ ...func(*manager.Downloader)) (int64, error) {
	f.bucket = aws.ToString(input.Bucket)
	f.key = aws.ToString(input.Key)
	if f.err != nil {
		return 0, f.err
	}
	n, err := w.WriteAt(f.data, 0)
	return int64(n), err
}

func TestS3Stager_StageIn(t *testing.T) {
	dl := &fakeDownloader{data: []byte("mirror reads")}
	s := NewS3Stager(S3StagerConfig{Downloader: dl})
	dst := filepath.Join(t.TempDir(), "SRR1553425_1.fastq.gz")

	err := s.StageIn(context.Background(), "s3://sra-mirror/SRR155/005/SRR1553425/SRR1553425_1.fastq.gz", dst)
	if err != nil {
		t.Fatalf("StageIn failed: %v", err)
	}
	if dl.bucket != "sra-mirror" || dl.key != "SRR155/005/SRR1553425/SRR1553425_1.fastq.gz" {
		t.Errorf("bucket/key = %q/%q", dl.bucket, dl.key)
	}
	got, _ := os.ReadFile(dst)
	if string(got) != "mirror reads" {
		t.Errorf("content = %q", got)
	}
}

func TestS3Stager_Errors(t *testing.T) {
	s := NewS3Stager(S3StagerConfig{Downloader: &fakeDownloader{err: fmt.Errorf("access denied")}})
	dir := t.TempDir()

	if err := s.StageIn(context.Background(), "s3://bucket-only", filepath.Join(dir, "a")); err == nil {
		t.Error("expected error for location without key")
	}
	if err := s.StageIn(context.Background(), "https://example.org/a", filepath.Join(dir, "a")); err == nil {
		t.Error("expected error for non-s3 scheme")
	}

	dst := filepath.Join(dir, "b")
	if err := s.StageIn(context.Background(), "s3://bucket/b", dst); err == nil {
		t.Fatal("expected download error")
	}
	if _, err := os.Stat(dst + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}
