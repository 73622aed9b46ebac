package s3

import (
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/simcheck/simcheck-backend/pkg/storage"
)

type fakeObjectAPI struct {
	objects map[string]string
	putErr  error
}

func (f *fakeObjectAPI) PutObject(ctx context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = string(data)
	return &awss3.PutObjectOutput{}, nil
}

func (f *fakeObjectAPI) GetObject(ctx context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(data))}, nil
}

func (f *fakeObjectAPI) DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (f *fakeObjectAPI) HeadBucket(ctx context.Context, in *awss3.HeadBucketInput, _ ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error) {
	return &awss3.HeadBucketOutput{}, nil
}

func TestClientPutGetDelete(t *testing.T) {
	ctx := context.Background()
	api := &fakeObjectAPI{objects: map[string]string{}}
	client := &Client{api: api, bucket: "docs"}

	if err := client.Put(ctx, "documents/u/a.pdf", strings.NewReader("%PDF"), 4, "application/pdf"); err != nil {
		t.Fatalf("put: %v", err)
	}
	rc, err := client.Get(ctx, "documents/u/a.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "%PDF" {
		t.Fatalf("unexpected body %q", body)
	}
	if err := client.Delete(ctx, "documents/u/a.pdf"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := client.Get(ctx, "documents/u/a.pdf"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestClientPutWrapsError(t *testing.T) {
	client := &Client{api: &fakeObjectAPI{objects: map[string]string{}, putErr: errors.New("boom")}, bucket: "docs"}
	err := client.Put(context.Background(), "k", strings.NewReader("x"), 1, "text/plain")
	if err == nil || !strings.Contains(err.Error(), "put object k") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestClientPresignGet(t *testing.T) {
	raw := awss3.New(awss3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		BaseEndpoint: aws.String("https://objects.example.com"),
		UsePathStyle: true,
	})
	client := &Client{api: raw, presign: awss3.NewPresignClient(raw), bucket: "docs"}

	signed, err := client.PresignGet(context.Background(), "reports/x/ai.pdf", 15*time.Minute)
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	parsed, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if parsed.Host != "objects.example.com" || parsed.Path != "/docs/reports/x/ai.pdf" {
		t.Fatalf("unexpected url %s", signed)
	}
	if parsed.Query().Get("X-Amz-Expires") != "900" {
		t.Fatalf("unexpected expiry in %s", signed)
	}
}
