package uploads

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Presigner issues a URL the client can PUT the object bytes to directly.
type Presigner interface {
	PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error)
}

// S3Presigner presigns PutObject requests against one bucket.
type S3Presigner struct {
	presign  *s3.PresignClient
	bucket   string
	keyFor   func(string) string
	kmsKeyID string
}

// NewS3Presigner wraps client. keyFor maps a storage key to the bucket key (prefixing);
// nil uses the key unchanged.
func NewS3Presigner(client *s3.Client, bucket string, keyFor func(string) string, kmsKeyID string) *S3Presigner {
	if keyFor == nil {
		keyFor = func(k string) string { return k }
	}
	return &S3Presigner{
		presign:  s3.NewPresignClient(client),
		bucket:   bucket,
		keyFor:   keyFor,
		kmsKeyID: kmsKeyID,
	}
}

// PresignPut implements Presigner.
func (p *S3Presigner) PresignPut(ctx context.Context, key, contentType string, expires time.Duration) (string, error) {
	input := presignInput(p.bucket, p.keyFor(key), contentType)
	if p.kmsKeyID != "" {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAwsKms
		input.SSEKMSKeyId = aws.String(p.kmsKeyID)
	}
	out, err := p.presign.PresignPutObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

func presignInput(bucket, key, contentType string) *s3.PutObjectInput {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	return input
}
