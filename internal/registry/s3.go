package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"releaseweaver/internal/release"
)

// S3API is the subset of the S3 client used by the registry.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 publishes packages to an S3 bucket.
type S3 struct {
	api       S3API
	bucket    string
	prefix    string
	project   string
	publicURL string
	logger    *slog.Logger
	now       func() time.Time
}

type s3Options struct {
	region    string
	endpoint  string
	pathStyle bool
	prefix    string
	project   string
	publicURL string
	logger    *slog.Logger
}

// S3Option configures an S3 registry.
type S3Option func(*s3Options)

// WithRegion overrides the region from the environment.
func WithRegion(region string) S3Option {
	return func(o *s3Options) { o.region = region }
}

// WithEndpoint points the client at an S3-compatible endpoint.
func WithEndpoint(endpoint string) S3Option {
	return func(o *s3Options) { o.endpoint = endpoint }
}

// WithPathStyle forces path-style addressing.
func WithPathStyle(enabled bool) S3Option {
	return func(o *s3Options) { o.pathStyle = enabled }
}

// WithPrefix stores packages under prefix instead of the bucket root.
func WithPrefix(prefix string) S3Option {
	return func(o *s3Options) { o.prefix = strings.Trim(prefix, "/") }
}

// WithProject records the project name in manifests.
func WithProject(name string) S3Option {
	return func(o *s3Options) { o.project = name }
}

// WithPublicURL sets the base URL package links are built from. The default
// is s3://<bucket>.
func WithPublicURL(u string) S3Option {
	return func(o *s3Options) { o.publicURL = strings.TrimRight(u, "/") }
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) S3Option {
	return func(o *s3Options) { o.logger = logger }
}

// NewS3 creates a registry backed by bucket, loading AWS configuration from
// the default credential chain.
func NewS3(ctx context.Context, bucket string, opts ...S3Option) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket cannot be empty")
	}
	o := applyS3Options(opts)

	var loadOpts []func(*config.LoadOptions) error
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.endpoint != "" {
			so.BaseEndpoint = aws.String(o.endpoint)
		}
		so.UsePathStyle = o.pathStyle
	})
	return newS3(client, bucket, o), nil
}

// NewS3WithAPI creates a registry on a caller-supplied client.
func NewS3WithAPI(api S3API, bucket string, opts ...S3Option) *S3 {
	return newS3(api, bucket, applyS3Options(opts))
}

func applyS3Options(opts []S3Option) *s3Options {
	o := &s3Options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newS3(api S3API, bucket string, o *s3Options) *S3 {
	publicURL := o.publicURL
	if publicURL == "" {
		publicURL = "s3://" + bucket
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &S3{
		api:       api,
		bucket:    bucket,
		prefix:    o.prefix,
		project:   o.project,
		publicURL: publicURL,
		logger:    logger,
		now:       time.Now,
	}
}

// Publish uploads artifacts under <prefix>/<tag>/ and commits the
// version by writing its manifest. A version whose manifest already exists
// is a conflict. Non-empty credentials replace the SDK's credential chain
// for every request of this call.
func (r *S3) Publish(ctx context.Context, rel release.Release, artifacts []release.Artifact, creds release.Credentials) (release.PackageRecord, error) {
	dir := releaseDir(r.prefix, rel.Tag)
	files, err := entries(dir, artifacts)
	if err != nil {
		return release.PackageRecord{}, err
	}
	optFns := credentialOverride(creds)
	manifestKey := path.Join(dir, manifestName)

	_, err = r.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(manifestKey),
	}, optFns...)
	switch {
	case err == nil:
		return release.PackageRecord{}, release.ConflictError("publish", fmt.Sprintf("version %s is already published", rel.Version))
	case !isNotFound(err):
		return release.PackageRecord{}, r.classify("head manifest", err)
	}

	for i, a := range artifacts {
		if err := r.upload(ctx, a, path.Join(dir, path.Base(a.Path)), optFns); err != nil {
			return release.PackageRecord{}, err
		}
		r.logger.Debug("artifact uploaded", "n", i+1, "of", len(artifacts), "path", a.Path)
	}

	body, err := encodeManifest(Manifest{
		Project:   r.project,
		Version:   rel.Version,
		Tag:       rel.Tag,
		Published: r.now().UTC(),
		Files:     files,
	})
	if err != nil {
		return release.PackageRecord{}, err
	}
	_, err = r.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(manifestKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	}, optFns...)
	if err != nil {
		if isPreconditionFailed(err) {
			return release.PackageRecord{}, release.ConflictError("publish", fmt.Sprintf("version %s is already published", rel.Version))
		}
		return release.PackageRecord{}, r.classify("put manifest", err)
	}

	if err := r.updateLatest(ctx, rel, optFns); err != nil {
		r.logger.Warn("latest pointer not updated", "version", rel.Version, "error", err)
	}

	r.logger.Info("package published", "bucket", r.bucket, "version", rel.Version, "files", len(files))
	return release.PackageRecord{Version: rel.Version, URL: r.publicURL + "/" + dir + "/"}, nil
}

func (r *S3) upload(ctx context.Context, a release.Artifact, key string, optFns []func(*s3.Options)) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	in := &s3.PutObjectInput{
		Bucket:   aws.String(r.bucket),
		Key:      aws.String(key),
		Body:     f,
		Metadata: map[string]string{"sha256": a.Digest, "format": string(a.Format)},
	}
	if a.Size > 0 {
		in.ContentLength = aws.Int64(a.Size)
	}
	if _, err := r.api.PutObject(ctx, in, optFns...); err != nil {
		return r.classify("put "+key, err)
	}
	return nil
}

// updateLatest moves <prefix>/latest.json to rel when rel is newer.
func (r *S3) updateLatest(ctx context.Context, rel release.Release, optFns []func(*s3.Options)) error {
	key := latestKey(r.prefix)

	var cur latest
	out, err := r.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, optFns...)
	switch {
	case err == nil:
		defer out.Body.Close()
		if err := json.NewDecoder(out.Body).Decode(&cur); err != nil {
			r.logger.Warn("ignoring unreadable latest pointer", "key", key, "error", err)
		}
	case !isNotFound(err):
		return r.classify("get latest", err)
	}

	newer, err := newerThan(rel.Version, cur.Version)
	if err != nil || !newer {
		return err
	}

	body, err := json.Marshal(latest{Version: rel.Version, Tag: rel.Tag})
	if err != nil {
		return err
	}
	_, err = r.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}, optFns...)
	if err != nil {
		return r.classify("put latest", err)
	}
	return nil
}

func credentialOverride(creds release.Credentials) []func(*s3.Options) {
	if creds.IsZero() {
		return nil
	}
	provider := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     creds.Username,
			SecretAccessKey: creds.Token,
			Source:          "releaseweaver",
		}, nil
	})
	return []func(*s3.Options){func(o *s3.Options) { o.Credentials = provider }}
}

// S3 error codes that mean the credentials were rejected.
var authCodes = map[string]bool{
	"AccessDenied":          true,
	"Forbidden":             true,
	"InvalidAccessKeyId":    true,
	"SignatureDoesNotMatch": true,
	"ExpiredToken":          true,
	"InvalidToken":          true,
}

func (r *S3) classify(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if authCodes[apiErr.ErrorCode()] {
			return release.AuthError("publish", fmt.Errorf("%s: %s", op, apiErr.ErrorCode()))
		}
		return fmt.Errorf("%s failed: %s: %s", op, apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	return false
}
