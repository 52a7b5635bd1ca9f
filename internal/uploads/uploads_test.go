package uploads

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cambria.dev/dashboard/internal/auth"
)

var writer = auth.User{ID: "u1", Role: auth.RoleBasic, ClientPermissions: []auth.ClientPermission{
	{ClientCode: "CAM", PermissionType: auth.LevelWrite},
	{ClientCode: "BRT", PermissionType: auth.LevelRead},
}}

func TestServicePutAndList(t *testing.T) {
	now := time.Date(2025, 4, 5, 6, 7, 8, 0, time.UTC)
	svc, err := NewService(NewMemoryStorage(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := context.Background()

	up, err := svc.Put(ctx, writer, "cam", "../../etc/report.csv", "text/csv", strings.NewReader("a,b\n1,2\n"), 8)
	require.NoError(t, err)
	assert.Equal(t, "report.csv", up.FileName)
	assert.True(t, strings.HasPrefix(up.Key, "clients/cam/"))
	assert.Equal(t, "u1", up.UploadedBy)

	list, err := svc.List(ctx, writer, "CAM")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, up.Key, list[0].Key)
	assert.Equal(t, "report.csv", list[0].FileName)
	assert.Equal(t, int64(8), list[0].Size)
	assert.Equal(t, "u1", list[0].UploadedBy)
	assert.True(t, list[0].UploadedAt.Equal(now))
}

func TestServiceEnforcesLevels(t *testing.T) {
	svc, err := NewService(NewMemoryStorage())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = svc.Put(ctx, writer, "BRT", "x.csv", "", strings.NewReader("x"), 1)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.List(ctx, writer, "BRT")
	assert.NoError(t, err)

	_, err = svc.List(ctx, writer, "OAK")
	assert.ErrorIs(t, err, auth.ErrForbidden)

	_, err = svc.Put(ctx, writer, "CAM", "x.csv", "", strings.NewReader(""), 0)
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}

type fakeS3 struct {
	puts  []*s3.PutObjectInput
	pages []*s3.ListObjectsV2Output
	calls int
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	if _, err := io.ReadAll(in.Body); err != nil {
		return nil, err
	}
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(_ context.Context, _ *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.err != nil {
		return nil, f.err
	}
	page := f.pages[f.calls]
	f.calls++
	return page, nil
}

func TestS3StoragePutAndPaginatedList(t *testing.T) {
	fake := &fakeS3{pages: []*s3.ListObjectsV2Output{
		{
			Contents:              []types.Object{{Key: aws.String("clients/cam/a.csv"), Size: aws.Int64(3)}},
			IsTruncated:           aws.Bool(true),
			NextContinuationToken: aws.String("next"),
		},
		{
			Contents:    []types.Object{{Key: aws.String("clients/cam/b.csv"), Size: aws.Int64(5)}},
			IsTruncated: aws.Bool(false),
		},
	}}
	store, err := NewS3Storage(fake, "cambria-uploads")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "clients/cam/a.csv", strings.NewReader("abc"), 3, "text/csv", map[string]string{"uploaded-by": "u1"}))
	require.Len(t, fake.puts, 1)
	assert.Equal(t, "cambria-uploads", aws.ToString(fake.puts[0].Bucket))
	assert.Equal(t, int64(3), aws.ToInt64(fake.puts[0].ContentLength))
	assert.Equal(t, "u1", fake.puts[0].Metadata["uploaded-by"])

	objects, err := store.List(ctx, "clients/cam/")
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "clients/cam/b.csv", objects[1].Key)
	assert.Equal(t, 2, fake.calls)
}

func TestS3StorageWrapsErrors(t *testing.T) {
	boom := errors.New("access denied")
	store, err := NewS3Storage(&fakeS3{err: boom}, "bucket")
	require.NoError(t, err)
	err = store.Put(context.Background(), "k", strings.NewReader("x"), 1, "text/plain", nil)
	assert.ErrorIs(t, err, boom)
	_, err = store.List(context.Background(), "p")
	assert.ErrorIs(t, err, boom)
}
