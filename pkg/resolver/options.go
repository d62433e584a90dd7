package resolver

import (
	"os"
	"time"
)

type Options struct {
	// Timeout bounds the resolution of a single artifact, 0 disables it.
	Timeout     time.Duration `json:"timeout,omitempty"`
	Concurrency int           `json:"concurrency,omitempty"`
	// CacheDir holds spooled remote artifacts while they are in use.
	CacheDir      string        `json:"cacheDir,omitempty"`
	Retries       int           `json:"retries,omitempty"`
	RetryInterval time.Duration `json:"retryInterval,omitempty"`
	S3            *S3Options    `json:"s3,omitempty"`
}

type S3Options struct {
	URL       string `json:"url,omitempty"`
	Region    string `json:"region,omitempty"`
	AccessKey string `json:"accessKey,omitempty"`
	SecretKey string `json:"secretKey,omitempty"`
	PathStyle bool   `json:"pathStyle,omitempty"`
}

func DefaultOptions() *Options {
	return &Options{
		Timeout:       10 * time.Minute,
		Concurrency:   5,
		CacheDir:      os.Getenv("BIOIMAGEIO_CACHE_DIR"),
		Retries:       3,
		RetryInterval: time.Second,
		S3:            NewDefaultS3Options(),
	}
}

func NewDefaultS3Options() *S3Options {
	return &S3Options{
		URL:       os.Getenv("BIOIMAGEIO_S3_URL"),
		Region:    "us-east-1",
		PathStyle: true,
	}
}
