package notify

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	sc "github.com/dmitrijs2005/gophaccounts/internal/server/config"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mailer drops every message as an .eml object into an outbox bucket of an
// S3-compatible store, where a relay picks it up for delivery.
type S3Mailer struct {
	client objectPutter
	bucket string
}

// NewS3Mailer builds an S3 client from the static credentials and endpoint in cfg.
func NewS3Mailer(ctx context.Context, cfg *sc.Config) (*S3Mailer, error) {
	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Mailer{client: client, bucket: cfg.S3Bucket}, nil
}

// ObjectKey is where msg is stored: outbox/<yyyy>/<mm>/<dd>/<id>.eml.
func ObjectKey(msg *Message) string {
	d := msg.Date
	return fmt.Sprintf("outbox/%04d/%02d/%02d/%s.eml", d.Year(), d.Month(), d.Day(), msg.ID)
}

func (m *S3Mailer) Send(ctx context.Context, msg *Message) error {
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(ObjectKey(msg)),
		Body:        bytes.NewReader(msg.RFC822()),
		ContentType: aws.String("message/rfc822"),
		Metadata: map[string]string{
			"to":      msg.To,
			"subject": msg.Subject,
		},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", ObjectKey(msg), err)
	}
	return nil
}
