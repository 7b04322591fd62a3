package filestore

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/classmate/internal/config"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"notes.pdf", "notes.pdf", false},
		{"../../etc/passwd", "passwd", false},
		{`C:\docs\lesson.docx`, "lesson.docx", false},
		{"", "", true},
		{"..", "", true},
		{"/", "", true},
	}
	for _, tc := range tests {
		got, err := CleanKey(tc.in)
		if tc.wantErr {
			require.ErrorIs(t, err, ErrInvalidKey, tc.in)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}
}

func TestLocalStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(config.FileStoreConfig{Type: "local", Dir: dir})
	require.NoError(t, err)
	require.Equal(t, "local", store.Type())
	ctx := context.Background()

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, list)

	require.NoError(t, store.Save(ctx, "b.txt", strings.NewReader("bbb"), 3))
	require.NoError(t, store.Save(ctx, "a.txt", strings.NewReader("a"), 1))
	require.NoError(t, store.Save(ctx, "a.txt", strings.NewReader("aa"), 2))
	require.Error(t, store.Save(ctx, "x/y.txt", strings.NewReader("x"), 1))

	list, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "a.txt", list[0].Key)
	require.Equal(t, int64(2), list[0].Size)

	rc, err := store.Open(ctx, "a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "aa", string(data))

	path, cleanup, err := Materialize(ctx, store, "b.txt")
	require.NoError(t, err)
	cleanup()
	_, err = os.Stat(path)
	require.NoError(t, err)

	_, _, err = Materialize(ctx, store, "missing.txt")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Delete(ctx, "a.txt"))
	require.ErrorIs(t, store.Delete(ctx, "a.txt"), ErrNotFound)
	_, err = store.Open(ctx, "a.txt")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNewUnknownStore(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{})
	require.Error(t, err)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[aws.ToString(in.Key)] = data
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	delete(f.objects, aws.ToString(in.Key))
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := &s3.ListObjectsV2Output{}
	now := time.Now()
	for k, v := range f.objects {
		if !strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			continue
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(v))), LastModified: aws.Time(now)})
	}
	return out, nil
}

func TestS3Store(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"other/ignored.txt": []byte("x")}}
	store := newS3Store(fake, "bucket", "/uploads/")
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "lesson.txt", strings.NewReader("hello"), 5))
	_, ok := fake.objects["uploads/lesson.txt"]
	require.True(t, ok)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "lesson.txt", list[0].Key)
	require.Equal(t, int64(5), list[0].Size)

	path, cleanup, err := Materialize(ctx, store, "lesson.txt")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
	cleanup()
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))

	_, err = store.Open(ctx, "missing.txt")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Delete(ctx, "lesson.txt"))
	require.Empty(t, fake.objects["uploads/lesson.txt"])
}
