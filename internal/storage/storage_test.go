package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 is an in-memory S3API keyed by "bucket/key".
type fakeS3 struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	k := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[k] = data
	f.types[k] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestParseLocator(t *testing.T) {
	tests := []struct {
		raw     string
		want    Locator
		name    string
		wantErr bool
	}{
		{raw: "s3://bucket/in/data.csv", want: Locator{Bucket: "bucket", Key: "in/data.csv"}, name: "data.csv"},
		{raw: "S3://b/k.xlsx", want: Locator{Bucket: "b", Key: "k.xlsx"}, name: "k.xlsx"},
		{raw: "./local/file.csv", want: Locator{Key: "./local/file.csv"}, name: "file.csv"},
		{raw: "  file.csv ", want: Locator{Key: "file.csv"}, name: "file.csv"},
		{raw: "s3://bucket", wantErr: true},
		{raw: "s3:///key", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLocator(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.name, got.Name())
		})
	}
}

func TestLocator_String(t *testing.T) {
	assert.Equal(t, "s3://b/k/x.csv", Locator{Bucket: "b", Key: "k/x.csv"}.String())
	assert.Equal(t, "x.csv", Locator{Key: "x.csv"}.String())
}

func TestFetcher_S3(t *testing.T) {
	api := newFakeS3()
	api.objects["b/in/x.csv"] = []byte("id\n1\n")
	f := NewFetcher(api, nil, 0)

	data, err := f.Fetch(context.Background(), Locator{Bucket: "b", Key: "in/x.csv"})
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(data))

	_, err = f.Fetch(context.Background(), Locator{Bucket: "b", Key: "missing.csv"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetcher_S3SizeLimit(t *testing.T) {
	api := newFakeS3()
	api.objects["b/big.csv"] = bytes.Repeat([]byte("x"), 100)

	_, err := NewFetcher(api, nil, 10).Fetch(context.Background(), Locator{Bucket: "b", Key: "big.csv"})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetcher_NoObjectStore(t *testing.T) {
	_, err := NewFetcher(nil, nil, 0).Fetch(context.Background(), Locator{Bucket: "b", Key: "k"})
	assert.ErrorIs(t, err, ErrNoObjectStore)
}

func writeMem(t *testing.T, fs billy.Filesystem, name, body string) {
	t.Helper()
	f, err := fs.Create(name)
	require.NoError(t, err)
	_, err = f.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestFetcher_Local(t *testing.T) {
	fs := memfs.New()
	writeMem(t, fs, "in/x.csv", "a,b\n")

	data, err := NewFetcher(nil, fs, 0).Fetch(context.Background(), Locator{Key: "in/x.csv"})
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	data, err = NewFetcher(nil, fs, 0).Fetch(context.Background(), Locator{Key: "./in/../in/x.csv"})
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))

	_, err = NewFetcher(nil, fs, 0).Fetch(context.Background(), Locator{Key: "in/nope.csv"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewFetcher(nil, fs, 2).Fetch(context.Background(), Locator{Key: "in/x.csv"})
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestFetcher_LocalStaysInsideRoot(t *testing.T) {
	fs := memfs.New()
	writeMem(t, fs, "secret.csv", "token\nTOPSECRET\n")
	data, err := fs.Chroot("data")
	require.NoError(t, err)
	f := NewFetcher(nil, data, 0)

	for _, key := range []string{"/secret.csv", "../secret.csv", "in/../../secret.csv", ".."} {
		t.Run(key, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), Locator{Key: key})
			assert.ErrorIs(t, err, ErrOutsideRoot)
		})
	}
}

func TestFetcher_LocalDisabled(t *testing.T) {
	_, err := NewFetcher(nil, nil, 0).Fetch(context.Background(), Locator{Key: "x.csv"})
	assert.ErrorIs(t, err, ErrLocalDisabled)
}

func TestFetcher_HostPaths(t *testing.T) {
	fs := memfs.New()
	writeMem(t, fs, "/work/x.csv", "id\n1\n")

	data, err := NewFetcher(nil, fs, 0).WithHostPaths().Fetch(context.Background(), Locator{Key: "/work/x.csv"})
	require.NoError(t, err)
	assert.Equal(t, "id\n1\n", string(data))
}

func TestFetcher_BoundDataFS(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(filepath.Dir(root), filepath.Base(root)+"-outside.csv")
	require.NoError(t, os.WriteFile(outside, []byte("TOPSECRET"), 0o644))
	t.Cleanup(func() { os.Remove(outside) })
	require.NoError(t, os.WriteFile(filepath.Join(root, "ok.csv"), []byte("id\n"), 0o644))

	fs, err := DataFS(root)
	require.NoError(t, err)
	f := NewFetcher(nil, fs, 0)

	data, err := f.Fetch(context.Background(), Locator{Key: "ok.csv"})
	require.NoError(t, err)
	assert.Equal(t, "id\n", string(data))

	_, err = f.Fetch(context.Background(), Locator{Key: outside})
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestLocalPath(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "x.csv", want: "x.csv"},
		{key: "./in/x.csv", want: "in/x.csv"},
		{key: "in/../x.csv", want: "x.csv"},
		{key: "/etc/passwd", wantErr: true},
		{key: "../x.csv", wantErr: true},
		{key: "in/../../x.csv", wantErr: true},
		{key: " ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := LocalPath(tt.key)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetcher_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewFetcher(nil, memfs.New(), 0).Fetch(ctx, Locator{Key: "x"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestS3Sink_Put(t *testing.T) {
	api := newFakeS3()
	sink := NewS3Sink(api, "results")

	require.NoError(t, sink.Put(context.Background(), "passed/x.csv", []byte("data"), "text/csv"))
	assert.Equal(t, []byte("data"), api.objects["results/passed/x.csv"])
	assert.Equal(t, "text/csv", api.types["results/passed/x.csv"])

	api.putErr = errors.New("access denied")
	err := sink.Put(context.Background(), "k", nil, "")
	assert.ErrorContains(t, err, "s3://results/k")
}

func TestDirSink_Put(t *testing.T) {
	fs := memfs.New()
	out, err := fs.Chroot("/out")
	require.NoError(t, err)
	sink := NewDirSink(out)

	require.NoError(t, sink.Put(context.Background(), "validation-results/r.json", []byte("{}"), "application/json"))
	require.NoError(t, sink.Put(context.Background(), "validation-results/r.json", []byte("{\"v\":2}"), "application/json"))
	require.NoError(t, sink.Put(context.Background(), "top.txt", []byte("t"), "text/plain"))

	data, err := util.ReadFile(fs, "/out/validation-results/r.json")
	require.NoError(t, err)
	assert.Equal(t, `{"v":2}`, string(data), "existing artifacts are truncated")
	_, err = fs.Stat("/out/top.txt")
	assert.NoError(t, err)
	assert.Equal(t, "/out", sink.String())
}
