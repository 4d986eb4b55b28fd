package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SalahElkadim/alc/pkg/errors"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
}

func notFound() error {
	return awserr.NewRequestFailure(awserr.New(s3.ErrCodeNoSuchKey, "missing", nil), http.StatusNotFound, "req")
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, notFound()
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObjectWithContext(_ aws.Context, in *s3.HeadObjectInput, _ ...request.Option) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.StringValue(in.Key)]; !ok {
		return nil, awserr.NewRequestFailure(awserr.New("NotFound", "missing", nil), http.StatusNotFound, "req")
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.StringValue(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjectWithContext(_ aws.Context, in *s3.DeleteObjectInput, _ ...request.Option) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.StringValue(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestDownload(t *testing.T) {
	store := NewS3StorageWithClient(&fakeS3{objects: map[string][]byte{"uploads/q.xlsx": []byte("wb")}}, "banks")
	ctx := context.Background()

	for _, ref := range []string{"uploads/q.xlsx", "s3://banks/uploads/q.xlsx", "/uploads/q.xlsx"} {
		rc, err := store.Download(ctx, ref)
		require.NoError(t, err, ref)
		data, _ := io.ReadAll(rc)
		rc.Close()
		assert.Equal(t, "wb", string(data))
	}

	_, err := store.Download(ctx, "uploads/missing.xlsx")
	assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
}

func TestExists(t *testing.T) {
	store := NewS3StorageWithClient(&fakeS3{objects: map[string][]byte{"a.xlsx": nil}}, "banks")

	ok, err := store.Exists(context.Background(), "a.xlsx")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(context.Background(), "b.xlsx")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUploadAndDelete(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := NewS3StorageWithClient(fake, "banks")
	ctx := context.Background()

	// bytes.Reader seeks, io.MultiReader does not
	require.NoError(t, store.Upload(ctx, "s3://banks/a.xlsx", bytes.NewReader([]byte("one"))))
	require.NoError(t, store.Upload(ctx, "b.xlsx", io.MultiReader(bytes.NewReader([]byte("tw")), bytes.NewReader([]byte("o")))))
	assert.Equal(t, "one", string(fake.objects["a.xlsx"]))
	assert.Equal(t, "two", string(fake.objects["b.xlsx"]))

	require.NoError(t, store.Delete(ctx, "a.xlsx"))
	ok, err := store.Exists(ctx, "a.xlsx")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWorkbookHelpers(t *testing.T) {
	assert.True(t, IsWorkbook("bank.xlsx"))
	assert.True(t, IsWorkbook("uploads/BANK.XLSX"))
	assert.False(t, IsWorkbook("bank.csv"))
	assert.False(t, IsWorkbook("xlsx"))

	assert.Equal(t, "imports/books/3/job-1.xlsx", WorkbookKey(3, "job-1"))
}
