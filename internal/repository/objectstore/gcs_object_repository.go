package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"

	"github.com/zzenonn/zpool/internal/domain"
)

// GCSAccountRepository manages one GCS bucket (or prefix) as a quota-bound account.
type GCSAccountRepository struct {
	client *storage.Client
	bucket string
	prefix string
	quiet  bool
	quota  *quotaLedger
}

// NewGCSAccountRepository creates a new GCS account repository. The
// repository owns client and closes it on Close.
func NewGCSAccountRepository(client *storage.Client, cfg AccountConfig, quiet bool) *GCSAccountRepository {
	return &GCSAccountRepository{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		quiet:  quiet,
		quota:  &quotaLedger{quota: cfg.Quota},
	}
}

// Capacity lists the account prefix and returns quota and free bytes
func (r *GCSAccountRepository) Capacity(ctx context.Context) (domain.Capacity, error) {
	query := &storage.Query{}
	if r.prefix != "" {
		query.Prefix = r.prefix + "/"
	}
	if err := query.SetAttrSelection([]string{"Size"}); err != nil {
		return domain.Capacity{}, err
	}

	var used int64
	it := r.client.Bucket(r.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return domain.Capacity{}, classifyGCSError("list gs://"+r.bucket, err)
		}
		used += attrs.Size
	}

	log.Debugf("GCS bucket %s/%s uses %d bytes", r.bucket, r.prefix, used)
	return r.quota.set(used), nil
}

// Transfer uploads a local file under dest, refusing when the quota would be exceeded
func (r *GCSAccountRepository) Transfer(ctx context.Context, file domain.File, dest string) (domain.TransferResult, error) {
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
		Location: fmt.Sprintf("gs://%s/%s", r.bucket, key),
		Size:     file.Size,
	}, nil
}

func (r *GCSAccountRepository) upload(ctx context.Context, key string, file domain.File) error {
	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("error opening file: %w", err)
	}
	defer f.Close()

	// Cancelling ctx aborts the upload; nothing is committed unless Close succeeds.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := r.client.Bucket(r.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType(file.Path)

	var reader io.Reader = f
	if !r.quiet {
		log.Debugf("Uploading to GCS: gs://%s/%s", r.bucket, key)
		bar := progressbar.DefaultBytes(file.Size, "uploading")
		pbReader := progressbar.NewReader(f, bar)
		reader = &pbReader
	}

	if _, err := io.Copy(writer, reader); err != nil {
		cancel()
		_ = writer.Close()
		return classifyGCSError("upload gs://"+r.bucket+"/"+key, err)
	}
	return classifyGCSError("upload gs://"+r.bucket+"/"+key, writer.Close())
}

// Exists reports whether key is present under the account prefix
func (r *GCSAccountRepository) Exists(ctx context.Context, key string) (bool, error) {
	_, err := r.client.Bucket(r.bucket).Object(prefixedKey(r.prefix, key)).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, classifyGCSError("attrs "+key, err)
}

// List returns the direct children of dir under the account prefix
func (r *GCSAccountRepository) List(ctx context.Context, dir string) ([]domain.ObjectEntry, error) {
	query := &storage.Query{Delimiter: "/"}
	if p := prefixedKey(r.prefix, dir); p != "" {
		query.Prefix = p + "/"
	}
	if err := query.SetAttrSelection([]string{"Name", "Size"}); err != nil {
		return nil, err
	}

	var entries []domain.ObjectEntry
	it := r.client.Bucket(r.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyGCSError("list gs://"+r.bucket+"/"+query.Prefix, err)
		}
		switch {
		case attrs.Prefix != "":
			entries = append(entries, domain.ObjectEntry{Key: relativeKey(r.prefix, attrs.Prefix), IsDir: true})
		case attrs.Name != query.Prefix:
			entries = append(entries, domain.ObjectEntry{Key: relativeKey(r.prefix, attrs.Name), Size: attrs.Size})
		}
	}
	return entries, nil
}

// Close closes the underlying GCS client
func (r *GCSAccountRepository) Close() error {
	return r.client.Close()
}
