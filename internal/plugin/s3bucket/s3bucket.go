// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
s3bucket.go - S3 / MinIO Bucket Plugin

Snapshots every object under a bucket prefix into one compressed tarball and
restores a tarball back into a (possibly different) bucket prefix. Works
against AWS S3 and S3-compatible stores such as MinIO, Garage or Ceph RGW.

Target config:

	{
	  "bucket": "photos",
	  "prefix": "library/",
	  "region": "us-east-1",
	  "endpoint": "http://minio.lan:9000",
	  "access_key_id": "...",
	  "secret_access_key": "...",
	  "use_path_style": true
	}

Object keys are stored relative to the prefix, so restoring into a target
with another prefix relocates the objects.
*/

//nolint:staticcheck // File documentation, not package doc
package s3bucket

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/tomtom215/homevault/internal/artifact"
	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/plugin"
	"github.com/tomtom215/homevault/internal/plugin/tarstream"
)

// Name is the registry id of this plugin
const Name = "s3bucket"

const defaultRegion = "us-east-1"

// maxObjectSize bounds the in-memory buffer used when uploading one object
// during restore.
const maxObjectSize = 512 << 20

// Config is the per-target configuration
type Config struct {
	Bucket          string `json:"bucket"`
	Prefix          string `json:"prefix,omitempty"`
	Region          string `json:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	UsePathStyle    bool   `json:"use_path_style,omitempty"`
}

// ObjectAPI is the subset of the S3 client the plugin uses
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// ClientFactory builds an ObjectAPI for a target configuration
type ClientFactory func(cfg *Config) ObjectAPI

// Plugin backs up S3 bucket prefixes
type Plugin struct {
	format    tarstream.Format
	level     tarstream.Level
	newClient ClientFactory
}

var _ plugin.Plugin = (*Plugin)(nil)

// New creates the plugin using the AWS SDK client
func New(format tarstream.Format, level tarstream.Level) *Plugin {
	return NewWithClientFactory(format, level, NewClient)
}

// NewWithClientFactory creates the plugin with a custom client constructor
func NewWithClientFactory(format tarstream.Format, level tarstream.Level, factory ClientFactory) *Plugin {
	return &Plugin{format: format, level: level, newClient: factory}
}

// NewClient returns an S3 client for cfg. Static credentials are used when
// provided; otherwise the SDK's anonymous credentials apply.
func NewClient(cfg *Config) ObjectAPI {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	} else {
		opts.Credentials = aws.AnonymousCredentials{}
	}
	return s3.New(opts)
}

// Name implements plugin.Plugin
func (p *Plugin) Name() string { return Name }

func parseConfig(raw json.RawMessage) (*Config, error) {
	if len(raw) == 0 {
		return nil, models.NewValidationError("config", "bucket is required")
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, models.NewValidationError("config", fmt.Sprintf("malformed config: %v", err))
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, models.NewValidationError("bucket", "is required")
	}
	if (cfg.AccessKeyID == "") != (cfg.SecretAccessKey == "") {
		return nil, models.NewValidationError("access_key_id", "access key id and secret must be set together")
	}
	if cfg.Region == "" {
		cfg.Region = defaultRegion
	}
	return &cfg, nil
}

// ValidateConfig implements plugin.Plugin
func (p *Plugin) ValidateConfig(raw json.RawMessage) error {
	_, err := parseConfig(raw)
	return err
}

// Test checks the bucket is reachable with the configured credentials
func (p *Plugin) Test(ctx context.Context, raw json.RawMessage) error {
	cfg, err := parseConfig(raw)
	if err != nil {
		return err
	}
	if _, err := p.newClient(cfg).HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return fmt.Errorf("bucket %s not reachable: %w", cfg.Bucket, err)
	}
	return nil
}

// Backup implements plugin.Plugin
func (p *Plugin) Backup(ctx context.Context, bc *plugin.BackupContext) (result *plugin.BackupResult, err error) {
	cfg, err := parseConfig(bc.Target.Config)
	if err != nil {
		return nil, err
	}
	client := p.newClient(cfg)

	file := fmt.Sprintf("%s-%s%s", bc.Target.Slug, bc.StartedAt.UTC().Format("20060102T150405Z"), p.format.Extension())
	dest, err := bc.Artifacts.Prepare(bc.Target.Slug, bc.StartedAt, file)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".homevault-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()        //nolint:errcheck,gosec // Best effort cleanup on error
			os.Remove(tmpPath) //nolint:errcheck,gosec // Best effort cleanup on error
		}
	}()

	hasher := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(tmp, hasher)}
	tw, err := tarstream.NewWriter(counter, p.format, p.level)
	if err != nil {
		return nil, err
	}

	objects, payload, err := p.copyObjects(ctx, client, cfg, tw)
	if closeErr := tw.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to finish archive: %w", closeErr)
	}
	if err != nil {
		return nil, err
	}
	if err = tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp archive: %w", err)
	}
	if err = os.Rename(tmpPath, dest); err != nil {
		return nil, fmt.Errorf("failed to move archive into place: %w", err)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	details, _ := json.Marshal(map[string]any{ //nolint:errcheck // plain map
		"bucket":  cfg.Bucket,
		"prefix":  cfg.Prefix,
		"objects": objects,
	})
	meta := &artifact.Sidecar{
		Plugin:     Name,
		TargetID:   bc.Target.ID,
		TargetSlug: bc.Target.Slug,
		JobID:      bc.JobID,
		CreatedAt:  bc.StartedAt.UTC(),
		Bytes:      counter.n,
		SHA256:     sum,
		Format:     string(p.format),
		Details:    details,
	}
	if err := artifact.WriteSidecar(dest, meta); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("path", dest).Msg("Failed to write sidecar")
	}

	return &plugin.BackupResult{
		ArtifactPath: dest,
		Bytes:        counter.n,
		SHA256:       sum,
		Log: fmt.Sprintf("archived %d objects (%s) from s3://%s/%s",
			objects, humanize.Bytes(uint64(payload)), cfg.Bucket, cfg.Prefix), //nolint:gosec // size is non-negative
	}, nil
}

func (p *Plugin) copyObjects(ctx context.Context, client ObjectAPI, cfg *Config, tw *tarstream.Writer) (objects int, payload int64, err error) {
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(cfg.Bucket),
		Prefix: aws.String(cfg.Prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return objects, payload, fmt.Errorf("failed to list s3://%s/%s: %w", cfg.Bucket, cfg.Prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			name := strings.TrimPrefix(key, cfg.Prefix)
			if name == "" || strings.HasSuffix(key, "/") {
				continue // folder markers
			}
			n, err := copyObject(ctx, client, cfg.Bucket, key, name, aws.ToTime(obj.LastModified), tw)
			if err != nil {
				return objects, payload, err
			}
			objects++
			payload += n
		}
	}
	return objects, payload, nil
}

func copyObject(ctx context.Context, client ObjectAPI, bucket, key, name string, modTime time.Time, tw *tarstream.Writer) (int64, error) {
	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		return 0, fmt.Errorf("failed to get s3://%s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close() //nolint:errcheck // response body

	size := aws.ToInt64(out.ContentLength)
	header := &tar.Header{
		Name:     name,
		Mode:     0o640,
		Size:     size,
		ModTime:  modTime,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(header); err != nil {
		return 0, fmt.Errorf("failed to write tar header for %s: %w", key, err)
	}
	n, err := io.Copy(tw, out.Body)
	if err != nil {
		return n, fmt.Errorf("failed to copy s3://%s/%s: %w", bucket, key, err)
	}
	if n != size {
		return n, fmt.Errorf("s3://%s/%s: read %d bytes, expected %d", bucket, key, n, size)
	}
	return n, nil
}

// Restore uploads every archived object under the destination prefix
func (p *Plugin) Restore(ctx context.Context, rc *plugin.RestoreContext) (*plugin.RestoreResult, error) {
	cfg, err := parseConfig(rc.Target.Config)
	if err != nil {
		return nil, err
	}
	tr, err := tarstream.Open(rc.ArtifactPath)
	if err != nil {
		return nil, err
	}
	defer tr.Close() //nolint:errcheck // read-only

	client := p.newClient(cfg)
	uploaded := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if header.Size > maxObjectSize {
			return nil, fmt.Errorf("object %s is %s, larger than the restore limit", header.Name, humanize.Bytes(uint64(header.Size))) //nolint:gosec // checked positive
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from archive: %w", header.Name, err)
		}
		key := cfg.Prefix + header.Name
		if _, err := client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(cfg.Bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		}); err != nil {
			return nil, fmt.Errorf("failed to put s3://%s/%s: %w", cfg.Bucket, key, err)
		}
		uploaded++
	}

	size, sum, err := tr.Digest()
	if err != nil {
		return nil, err
	}
	dest := fmt.Sprintf("s3://%s/%s", cfg.Bucket, cfg.Prefix)
	return &plugin.RestoreResult{
		Status:        models.StatusSuccess,
		ArtifactPath:  rc.ArtifactPath,
		ArtifactBytes: size,
		SHA256:        sum,
		Message:       fmt.Sprintf("restored %d objects into %s", uploaded, dest),
		Log:           fmt.Sprintf("restored %d objects into %s", uploaded, dest),
	}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
