package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// apiError implements smithy.APIError.
type apiError struct {
	code string
}

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// mockS3 is an in-memory bucket keyed by "bucket/key".
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Bucket+"/"+*in.Key]; !ok {
		return nil, &apiError{code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		want    Location
		wantErr bool
	}{
		{uri: "weights.yaml", want: Location{Path: "weights.yaml"}},
		{uri: "/var/lib/voicegate/alice.profile", want: Location{Path: "/var/lib/voicegate/alice.profile"}},
		{uri: "s3://models/deepfake/v2.yaml", want: Location{Bucket: "models", Path: "deepfake/v2.yaml"}},
		{uri: "s3://models/top.yaml", want: Location{Bucket: "models", Path: "top.yaml"}},
		{uri: "", wantErr: true},
		{uri: "s3://models", wantErr: true},
		{uri: "s3://models/dir/", wantErr: true},
		{uri: "s3:///key", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := ParseURI(tt.uri)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseURI(%q) = %+v, want error", tt.uri, got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("ParseURI(%q) = %+v, want %+v", tt.uri, got, tt.want)
			}
			if got.IsS3() && got.String() != tt.uri {
				t.Fatalf("String() = %q, want %q", got.String(), tt.uri)
			}
		})
	}
}

func TestLocalReadWrite(t *testing.T) {
	ctx := context.Background()
	s := NewLocal(filepath.Join(t.TempDir(), "nested"))

	w, err := s.Write(ctx, "a/b/file.txt")
	if err != nil {
		t.Fatal(err)
	}
	io.WriteString(w, "hello")
	if ok, _ := s.Exists(ctx, "a/b/file.txt"); ok {
		t.Fatal("file visible before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	r, err := s.Read(ctx, "a/b/file.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}

	if err := s.Delete(ctx, "a/b/file.txt"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "a/b/file.txt"); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := s.Read(ctx, "a/b/file.txt"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read after Delete: %v", err)
	}
}

func TestLocalWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s := NewLocal(dir)
	for range 3 {
		w, err := s.Write(context.Background(), "f.bin")
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte{1, 2, 3})
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "f.bin" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Fatalf("dir = %v, want [f.bin]", names)
	}
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	mock := newMockS3()
	s := NewS3(mock, "bucket", "backups")

	if ok, err := s.Exists(ctx, "alice.profile"); err != nil || ok {
		t.Fatalf("Exists = %v, %v before write", ok, err)
	}
	if _, err := s.Read(ctx, "alice.profile"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Read missing: %v", err)
	}

	w, _ := s.Write(ctx, "alice.profile")
	io.WriteString(w, "payload")
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if _, ok := mock.objects["bucket/backups/alice.profile"]; !ok {
		t.Fatalf("objects = %v, want key under prefix", mock.objects)
	}
	if ok, err := s.Exists(ctx, "alice.profile"); err != nil || !ok {
		t.Fatalf("Exists = %v, %v after write", ok, err)
	}
	if err := s.Delete(ctx, "alice.profile"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists(ctx, "alice.profile"); ok {
		t.Fatal("object survives Delete")
	}
}

func TestS3WriteError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("access denied")
	w, _ := NewS3(mock, "bucket", "").Write(context.Background(), "x")
	w.Write([]byte("data"))
	if err := w.Close(); err == nil || !strings.Contains(err.Error(), "access denied") {
		t.Fatalf("Close = %v, want upload error", err)
	}
}

func TestResolverRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := Resolver{S3: newMockS3()}

	for _, uri := range []string{
		filepath.Join(t.TempDir(), "out", "weights.yaml"),
		"s3://models/deepfake/weights.yaml",
	} {
		if err := r.WriteFile(ctx, uri, []byte("version: x")); err != nil {
			t.Fatalf("WriteFile(%s): %v", uri, err)
		}
		got, err := r.ReadFile(ctx, uri)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", uri, err)
		}
		if string(got) != "version: x" {
			t.Fatalf("ReadFile(%s) = %q", uri, got)
		}
	}
}

func TestResolverWithoutS3Client(t *testing.T) {
	_, err := Resolver{}.ReadFile(context.Background(), "s3://models/w.yaml")
	if err == nil || !strings.Contains(err.Error(), "no S3 client") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewS3Client(t *testing.T) {
	c := NewS3Client(S3Config{Region: "us-east-1", Endpoint: "http://localhost:9000", PathStyle: true})
	opts := c.Options()
	if opts.Region != "us-east-1" || !opts.UsePathStyle {
		t.Fatalf("options = %+v", opts)
	}
	if opts.BaseEndpoint == nil || *opts.BaseEndpoint != "http://localhost:9000" {
		t.Fatalf("endpoint = %v", opts.BaseEndpoint)
	}
}
