package archive

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/edvin/ccmbridge/internal/config"
)

// PutObjectAPI is the part of the S3 client the archiver needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver uploads the working directories of preserved clusters to S3 as tar.gz objects.
type Archiver struct {
	logger zerolog.Logger
	client PutObjectAPI
	bucket string
	prefix string
}

// New returns nil when no bucket is configured.
func New(logger zerolog.Logger, cfg config.ArchiveConfig) *Archiver {
	if !cfg.Enabled() {
		return nil
	}
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: aws.AnonymousCredentials{},
	}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return NewWithClient(logger, s3.New(opts), cfg.Bucket, cfg.Prefix)
}

func NewWithClient(logger zerolog.Logger, client PutObjectAPI, bucket, prefix string) *Archiver {
	return &Archiver{
		logger: logger.With().Str("component", "log-archive").Logger(),
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

// Key returns the object key a cluster's logs are stored under.
func (a *Archiver) Key(cluster string) string {
	return a.prefix + cluster + ".tar.gz"
}

// Archive packs dir and uploads it under Key(cluster). It returns the s3:// URL of the
// uploaded object.
func (a *Archiver) Archive(ctx context.Context, cluster, dir string) (string, error) {
	var buf bytes.Buffer
	if err := Pack(&buf, dir); err != nil {
		return "", fmt.Errorf("pack %s: %w", dir, err)
	}

	key := a.Key(cluster)
	size := int64(buf.Len())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/gzip"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	url := fmt.Sprintf("s3://%s/%s", a.bucket, key)
	a.logger.Info().Str("cluster", cluster).Str("url", url).Int64("bytes", size).Msg("archived cluster logs")
	return url, nil
}

// Pack writes dir as a gzip-compressed tarball. Entries are relative to dir and use
// forward slashes. Sockets and other special files are skipped.
func Pack(w io.Writer, dir string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = path.Clean(filepath.ToSlash(rel))
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

