package resolver

import (
	"context"
	stderrors "errors"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go/transport/http"
	"github.com/go-logr/logr"
	"k8s.io/utils/pointer"

	"github.com/mese79/spec-bioimage-io/pkg/errors"
)

const DownloadPartConcurrency = 3

// S3Source fetches s3://bucket/key references. The client is created on first use
// so manifests without s3 references never load AWS configuration.
type S3Source struct {
	options *S3Options

	once   sync.Once
	client *s3.Client
	err    error
}

var _ Source = &S3Source{}

func NewS3Source(options *S3Options) *S3Source {
	if options == nil {
		options = NewDefaultS3Options()
	}
	return &S3Source{options: options}
}

func NewS3Client(ctx context.Context, options *S3Options) (*s3.Client, error) {
	loadopts := []func(*config.LoadOptions) error{}
	if options.Region != "" {
		loadopts = append(loadopts, config.WithRegion(options.Region))
	}
	// without static keys the default credential chain applies
	if options.AccessKey != "" {
		loadopts = append(loadopts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(options.AccessKey, options.SecretKey, ""),
		))
	}
	if options.URL != "" {
		loadopts = append(loadopts, config.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(
				func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{URL: options.URL}, nil
				},
			),
		))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadopts...)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = options.PathStyle
	}), nil
}

func (s *S3Source) Fetch(ctx context.Context, location *url.URL, into *Spool) error {
	s.once.Do(func() {
		s.client, s.err = NewS3Client(ctx, s.options)
	})
	if s.err != nil {
		return s.err
	}
	bucket, key := location.Host, strings.TrimPrefix(location.Path, "/")
	if bucket == "" || key == "" {
		return errors.NewMissingFileError(location.String())
	}

	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if IsS3StorageNotFound(err) {
			return errors.NewMissingFileError(location.String())
		}
		return err
	}
	logr.FromContextOrDiscard(ctx).V(1).Info("s3 object",
		"url", location.String(),
		"etag", pointer.StringDeref(head.ETag, ""),
		"contentType", pointer.StringDeref(head.ContentType, ""),
	)
	into.SetTotal(head.ContentLength)

	downloader := manager.NewDownloader(s.client, func(d *manager.Downloader) {
		d.Concurrency = DownloadPartConcurrency
	})
	if _, err := downloader.Download(ctx, into, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		if IsS3StorageNotFound(err) {
			return errors.NewMissingFileError(location.String())
		}
		return err
	}
	return nil
}

func IsS3StorageNotFound(err error) bool {
	var nosuchkey *s3types.NoSuchKey
	if stderrors.As(err, &nosuchkey) {
		return true
	}
	var apie *http.ResponseError
	if stderrors.As(err, &apie) {
		return apie.HTTPStatusCode() == 404
	}
	return false
}
