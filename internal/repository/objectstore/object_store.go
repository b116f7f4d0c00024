package objectstore

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/viper"

	zerrors "github.com/zzenonn/zpool/internal/errors"
)

// LoadSessionFile reads an account session file.
//
// A session file is YAML. It either carries a single account URI:
//
//	ref: s3://media-archive/videos?quota=15GiB&profile=acct1
//
// or the fields spelled out:
//
//	platform: s3
//	bucket: media-archive
//	prefix: videos
//	quota: 15GiB
//	profile: acct1
//	region: eu-west-1
//	credentials_file: /etc/zpool/gcs-key.json
func LoadSessionFile(sessionPath string) (AccountConfig, error) {
	v := viper.New()
	v.SetConfigFile(sessionPath)
	v.SetConfigType("yaml")
	v.SetDefault("platform", string(S3Type))

	if err := v.ReadInConfig(); err != nil {
		return AccountConfig{}, fmt.Errorf("error reading session %s: %w", sessionPath, err)
	}

	if ref := v.GetString("ref"); ref != "" {
		return ParseAccountRef(ref)
	}

	quota, err := parseQuota(v.GetString("quota"))
	if err != nil {
		return AccountConfig{}, err
	}

	platform := RepositoryType(strings.ToLower(v.GetString("platform")))
	if platform == "gs" {
		platform = GCSType
	}

	cfg := AccountConfig{
		Type:            platform,
		Bucket:          v.GetString("bucket"),
		Prefix:          strings.Trim(v.GetString("prefix"), "/"),
		Quota:           quota,
		Region:          v.GetString("region"),
		Profile:         v.GetString("profile"),
		CredentialsFile: v.GetString("credentials_file"),
	}
	if err := cfg.Validate(); err != nil {
		return AccountConfig{}, fmt.Errorf("session %s: %w", sessionPath, err)
	}
	return cfg, nil
}

// objectKey joins the account prefix, the destination folder and the file name
func objectKey(prefix, dest, name string) string {
	return strings.TrimPrefix(path.Join(prefix, strings.Trim(dest, "/"), filepath.Base(name)), "/")
}

// prefixedKey places a caller-relative key under the account prefix
func prefixedKey(prefix, key string) string {
	return strings.TrimPrefix(path.Join(prefix, strings.Trim(key, "/")), "/")
}

// relativeKey strips the account prefix and any trailing slash from a backend key
func relativeKey(prefix, key string) string {
	key = strings.TrimSuffix(key, "/")
	if prefix != "" {
		key = strings.TrimPrefix(key, prefix+"/")
	}
	return key
}

// sessionNotFound reports a session reference that does not exist on disk
func sessionNotFound(sessionPath string) error {
	return &zerrors.SessionNotFoundError{Path: sessionPath}
}

// contentType sniffs the first bytes of a local file
func contentType(filePath string) string {
	f, err := os.Open(filePath)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := io.ReadFull(f, buf)
	return mimetype.Detect(buf[:n]).String()
}
