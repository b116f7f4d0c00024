package objectstore

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zpool/internal/domain"
)

// S3API is the subset of the S3 client an account repository uses.
type S3API interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
	s3.HeadObjectAPIClient
}

// S3AccountRepository manages one S3 bucket (or prefix) as a quota-bound account.
type S3AccountRepository struct {
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
	quiet    bool
	quota    *quotaLedger
}

// NewS3AccountRepository initializes a new S3AccountRepository.
func NewS3AccountRepository(client S3API, cfg AccountConfig, quiet bool) *S3AccountRepository {
	return &S3AccountRepository{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		quiet:    quiet,
		quota:    &quotaLedger{quota: cfg.Quota},
	}
}

// GetBucketName returns the bucket name.
func (r *S3AccountRepository) GetBucketName() string {
	return r.bucket
}

// GetStorageType returns the object store type.
func (r *S3AccountRepository) GetStorageType() string {
	return string(S3Type)
}

// Capacity lists the account prefix and returns quota and free bytes
func (r *S3AccountRepository) Capacity(ctx context.Context) (domain.Capacity, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(r.bucket),
	}
	if r.prefix != "" {
		input.Prefix = aws.String(r.prefix + "/")
	}

	var used int64
	paginator := s3.NewListObjectsV2Paginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return domain.Capacity{}, classifyS3Error("list "+r.bucket, err)
		}
		for _, obj := range page.Contents {
			used += aws.ToInt64(obj.Size)
		}
	}

	log.Debugf("S3 bucket %s/%s uses %d bytes", r.bucket, r.prefix, used)
	return r.quota.set(used), nil
}

// Transfer uploads a local file under dest, refusing when the quota would be exceeded
func (r *S3AccountRepository) Transfer(ctx context.Context, file domain.File, dest string) (domain.TransferResult, error) {
	if !r.quota.isCounted() {
		if _, err := r.Capacity(ctx); err != nil {
			return domain.TransferResult{}, err
		}
	}
	if err := r.quota.reserve(r.bucket, file.Size); err != nil {
		return domain.TransferResult{}, err
	}

	key := objectKey(r.prefix, dest, fileName(file))
	if err := r.upload(ctx, key, file); err != nil {
		r.quota.release(file.Size)
		return domain.TransferResult{}, err
	}
	r.quota.commit(file.Size)

	return domain.TransferResult{
		Location: fmt.Sprintf("s3://%s/%s", r.bucket, key),
		Size:     file.Size,
	}, nil
}

func (r *S3AccountRepository) upload(ctx context.Context, key string, file domain.File) error {
	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	var body io.Reader = f
	if !r.quiet {
		log.Debugf("Uploading to S3: s3://%s/%s", r.bucket, key)
		bar := progressbar.DefaultBytes(file.Size, "uploading")
		pbReader := progressbar.NewReader(f, bar)
		body = &pbReader
	}

	_, err = r.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType(file.Path)),
	})
	return classifyS3Error("upload s3://"+r.bucket+"/"+key, err)
}

// Exists reports whether key is present under the account prefix
func (r *S3AccountRepository) Exists(ctx context.Context, key string) (bool, error) {
	_, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(prefixedKey(r.prefix, key)),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, classifyS3Error("head "+key, err)
}

// List returns the direct children of dir under the account prefix
func (r *S3AccountRepository) List(ctx context.Context, dir string) ([]domain.ObjectEntry, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(r.bucket),
		Delimiter: aws.String("/"),
	}
	if p := prefixedKey(r.prefix, dir); p != "" {
		input.Prefix = aws.String(p + "/")
	}

	var entries []domain.ObjectEntry
	paginator := s3.NewListObjectsV2Paginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classifyS3Error("list s3://"+r.bucket+"/"+aws.ToString(input.Prefix), err)
		}
		for _, cp := range page.CommonPrefixes {
			entries = append(entries, domain.ObjectEntry{Key: relativeKey(r.prefix, aws.ToString(cp.Prefix)), IsDir: true})
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == aws.ToString(input.Prefix) {
				continue
			}
			entries = append(entries, domain.ObjectEntry{Key: relativeKey(r.prefix, key), Size: aws.ToInt64(obj.Size)})
		}
	}
	return entries, nil
}

// Close releases nothing; S3 clients hold no connections of their own
func (r *S3AccountRepository) Close() error {
	return nil
}

func fileName(file domain.File) string {
	if file.Path != "" {
		return file.Path
	}
	return file.ID
}
