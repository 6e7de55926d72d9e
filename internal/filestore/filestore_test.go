package filestore

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/scribe/internal/config"
	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

func TestCleanKey(t *testing.T) {
	cases := map[string]string{
		"dnd5e/manifest.json":    "dnd5e/manifest.json",
		"/dnd5e//docs/a.idx":     "dnd5e/docs/a.idx",
		"dnd5e\\docs\\a.idx":     "dnd5e/docs/a.idx",
		" dnd5e/./manifest.json": "dnd5e/manifest.json",
	}
	for in, want := range cases {
		got, err := cleanKey(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}
	for _, bad := range []string{"", "  ", "/", "../etc/passwd", "a/../../b"} {
		_, err := cleanKey(bad)
		require.ErrorIs(t, err, appErr.ErrInvalid, bad)
	}
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)
	require.Equal(t, "local", store.Type())

	ok, err := store.Exists(ctx, "dnd5e/manifest.json")
	require.NoError(t, err)
	require.False(t, ok)
	_, err = store.Open(ctx, "dnd5e/manifest.json")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	require.NoError(t, store.Save(ctx, "dnd5e/manifest.json", strings.NewReader(`{"v":1}`), 7))
	require.NoError(t, store.Save(ctx, "dnd5e/manifest.json", strings.NewReader(`{"v":2}`), 7))
	ok, err = store.Exists(ctx, "dnd5e/manifest.json")
	require.NoError(t, err)
	require.True(t, ok)

	rc, err := store.Open(ctx, "dnd5e/manifest.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, `{"v":2}`, string(data))
}

func TestNewRejectsUnknownStores(t *testing.T) {
	_, err := New(config.FileStoreConfig{})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "ftp"})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{}})
	require.Error(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	client := &fakeS3{objects: map[string][]byte{}}
	store := NewS3Store(client, "rulebooks", "/indexes/")
	require.Equal(t, "s3", store.Type())

	ok, err := store.Exists(ctx, "dnd5e/manifest.json")
	require.NoError(t, err)
	require.False(t, ok)
	_, err = store.Open(ctx, "dnd5e/manifest.json")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	require.NoError(t, store.Save(ctx, "dnd5e/manifest.json", strings.NewReader("{}"), 2))
	require.Contains(t, client.objects, "indexes/dnd5e/manifest.json")

	ok, err = store.Exists(ctx, "dnd5e/manifest.json")
	require.NoError(t, err)
	require.True(t, ok)
	rc, err := store.Open(ctx, "dnd5e/manifest.json")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "{}", string(data))

	_, err = store.Open(ctx, "../x")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestBuildS3Endpoint(t *testing.T) {
	require.Equal(t, "", buildS3Endpoint("  ", true))
	require.Equal(t, "https://minio:9000", buildS3Endpoint("minio:9000/", true))
	require.Equal(t, "http://minio:9000", buildS3Endpoint("minio:9000", false))
	require.Equal(t, "http://x", buildS3Endpoint("http://x", true))
}
