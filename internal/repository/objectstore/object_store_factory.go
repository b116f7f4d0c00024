// Package objectstore provides per-account storage backends and the factory
// that dials them from an account reference.
package objectstore

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"google.golang.org/api/option"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
)

// AccountRepository defines the operations the pool needs from one account's storage
type AccountRepository interface {
	Capacity(ctx context.Context) (domain.Capacity, error)
	Transfer(ctx context.Context, file domain.File, dest string) (domain.TransferResult, error)
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, dir string) ([]domain.ObjectEntry, error)
	Close() error
}

// RepositoryType represents the type of object storage
type RepositoryType string

const (
	S3Type  RepositoryType = "s3"
	GCSType RepositoryType = "gcs"
)

// AccountConfig describes one storage account: where its bytes go, how much
// it may hold and which credentials reach it.
type AccountConfig struct {
	Type            RepositoryType
	Bucket          string
	Prefix          string
	Quota           int64
	Region          string
	Profile         string
	CredentialsFile string
}

// Validate checks the fields every backend needs
func (c AccountConfig) Validate() error {
	switch c.Type {
	case S3Type, GCSType:
	default:
		return fmt.Errorf("%w: unsupported repository type %q", zerrors.ErrInvalidAccountRef, c.Type)
	}
	if c.Bucket == "" {
		return fmt.Errorf("%w: bucket name cannot be empty", zerrors.ErrInvalidAccountRef)
	}
	if c.Quota <= 0 {
		return fmt.Errorf("%w: quota must be positive for bucket %s", zerrors.ErrInvalidAccountRef, c.Bucket)
	}
	return nil
}

// AccountRepositoryFactory creates account repositories from account sources
type AccountRepositoryFactory struct {
	awsConfig aws.Config
	quiet     bool
}

// NewAccountRepositoryFactory creates a new factory
func NewAccountRepositoryFactory(awsConfig aws.Config, quiet bool) *AccountRepositoryFactory {
	return &AccountRepositoryFactory{
		awsConfig: awsConfig,
		quiet:     quiet,
	}
}

// Dial resolves the source reference and opens a repository for it
func (f *AccountRepositoryFactory) Dial(ctx context.Context, src domain.AccountSource) (AccountRepository, error) {
	cfg, err := ResolveAccountConfig(src.Ref)
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case S3Type:
		awsCfg, err := f.awsConfigFor(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3AccountRepository(s3.NewFromConfig(awsCfg), cfg, f.quiet), nil
	case GCSType:
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("unable to create GCS client for %s: %w", src.Name, err)
		}
		return NewGCSAccountRepository(client, cfg, f.quiet), nil
	default:
		return nil, fmt.Errorf("unsupported repository type: %s", cfg.Type)
	}
}

// awsConfigFor loads dedicated credentials when the account names a profile or region
func (f *AccountRepositoryFactory) awsConfigFor(ctx context.Context, cfg AccountConfig) (aws.Config, error) {
	if cfg.Profile == "" && cfg.Region == "" {
		return f.awsConfig, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("unable to load AWS SDK config for profile %q: %w", cfg.Profile, err)
	}
	return awsCfg, nil
}

// ResolveAccountConfig accepts either an account URI or a path to a session file
func ResolveAccountConfig(ref string) (AccountConfig, error) {
	ref = strings.TrimSpace(ref)
	if isAccountURI(ref) {
		return ParseAccountRef(ref)
	}
	if _, err := os.Stat(ref); err != nil {
		if os.IsNotExist(err) {
			return AccountConfig{}, sessionNotFound(ref)
		}
		return AccountConfig{}, fmt.Errorf("failed to stat session %s: %w", ref, err)
	}
	return LoadSessionFile(ref)
}

func isAccountURI(ref string) bool {
	lower := strings.ToLower(ref)
	for _, p := range []string{"s3://", "gs://", "gcs://", "s3:", "gs:"} {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// ParseAccountRef parses an account reference.
// Formats: "s3://bucket/prefix?quota=15GiB&region=eu-west-1&profile=acct1",
// "gs://bucket/prefix?quota=15GiB&credentials=/path/key.json", or "s3:bucket?quota=1GB".
func ParseAccountRef(ref string) (AccountConfig, error) {
	ref = strings.TrimSpace(ref)

	// Handle colon format (s3:bucket-name)
	if !strings.Contains(ref, "://") {
		parts := strings.SplitN(ref, ":", 2)
		if len(parts) != 2 {
			return AccountConfig{}, fmt.Errorf("%w: %s", zerrors.ErrInvalidAccountRef, ref)
		}
		ref = parts[0] + "://" + parts[1]
	}

	u, err := url.Parse(ref)
	if err != nil {
		return AccountConfig{}, fmt.Errorf("%w: %v", zerrors.ErrInvalidAccountRef, err)
	}

	var repoType RepositoryType
	switch strings.ToLower(u.Scheme) {
	case "s3":
		repoType = S3Type
	case "gs", "gcs":
		repoType = GCSType
	default:
		return AccountConfig{}, fmt.Errorf("%w: unsupported scheme %s", zerrors.ErrInvalidAccountRef, u.Scheme)
	}

	q := u.Query()
	quota, err := parseQuota(q.Get("quota"))
	if err != nil {
		return AccountConfig{}, err
	}

	cfg := AccountConfig{
		Type:            repoType,
		Bucket:          u.Host,
		Prefix:          strings.Trim(u.Path, "/"),
		Quota:           quota,
		Region:          q.Get("region"),
		Profile:         q.Get("profile"),
		CredentialsFile: q.Get("credentials"),
	}
	return cfg, cfg.Validate()
}

func parseQuota(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid quota %q", zerrors.ErrInvalidAccountRef, s)
	}
	return int64(n), nil
}
