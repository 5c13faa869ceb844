package notify

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	in   *s3.PutObjectInput
	body []byte
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.in = in
	f.body, _ = io.ReadAll(in.Body)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestObjectKey(t *testing.T) {
	msg := &Message{ID: "abc", Date: time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)}
	assert.Equal(t, "outbox/2026/03/07/abc.eml", ObjectKey(msg))
}

func TestS3Mailer_Send(t *testing.T) {
	putter := &fakePutter{}
	m := &S3Mailer{client: putter, bucket: "outbox"}
	msg := NewMessage("from@x", "to@x", "Hi", "body")

	require.NoError(t, m.Send(context.Background(), msg))

	require.NotNil(t, putter.in)
	assert.Equal(t, "outbox", aws.ToString(putter.in.Bucket))
	assert.Equal(t, ObjectKey(msg), aws.ToString(putter.in.Key))
	assert.Equal(t, "message/rfc822", aws.ToString(putter.in.ContentType))
	assert.Equal(t, "to@x", putter.in.Metadata["to"])
	assert.Equal(t, msg.RFC822(), putter.body)
}

func TestS3Mailer_SendError(t *testing.T) {
	m := &S3Mailer{client: &fakePutter{err: errors.New("no such bucket")}, bucket: "outbox"}

	err := m.Send(context.Background(), NewMessage("a", "b", "c", "d"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such bucket")
}

func TestNewS3Mailer_UsesConfig(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	origNew := newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	cfg := testConfig()
	cfg.S3Region = "eu-west-1"
	cfg.S3BaseEndpoint = "http://minio:9000"

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-west-1", lo.Region)
		require.NotNil(t, lo.Credentials)
		creds, err := lo.Credentials.Retrieve(ctx)
		require.NoError(t, err)
		assert.Equal(t, cfg.S3RootUser, creds.AccessKeyID)
		return aws.Config{Region: lo.Region}, nil
	}

	var opts s3.Options
	newS3ClientFromConfig = func(c aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return s3.NewFromConfig(c, optFns...)
	}

	m, err := NewS3Mailer(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "outbox", m.bucket)
	assert.Equal(t, "http://minio:9000", aws.ToString(opts.BaseEndpoint))
	assert.True(t, opts.UsePathStyle)
}

func TestNewS3Mailer_ConfigError(t *testing.T) {
	origLoad := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = origLoad })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no profile")
	}

	_, err := NewS3Mailer(context.Background(), testConfig())
	assert.ErrorContains(t, err, "no profile")
}
