package firmware

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

type S3Opts struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	UseSSL          bool
	// SkipVerify disables TLS verification for self-signed storage
	SkipVerify bool
}

// S3Source reads images from an S3-compatible bucket
type S3Source struct {
	client *minio.Client
}

func NewS3Source(opts S3Opts) (*S3Source, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.SkipVerify {
		minioOpts.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &S3Source{client: client}, nil
}

func (s *S3Source) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, ref.Bucket, ref.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer obj.Close()

	image, err := io.ReadAll(io.LimitReader(obj, MaxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	if len(image) > MaxImageSize {
		return nil, ErrTooLarge
	}

	log.Debug().Str("bucket", ref.Bucket).Str("key", ref.Key).Int("size", len(image)).Msg("Firmware downloaded")
	return image, nil
}
