package objectstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	zerrors "github.com/zzenonn/zpool/internal/errors"
)

func TestParseAccountRef(t *testing.T) {
	tests := []struct {
		name    string
		ref     string
		want    AccountConfig
		wantErr bool
	}{
		{
			name: "s3 uri with options",
			ref:  "s3://media-archive/videos/?quota=15GiB&region=eu-west-1&profile=acct1",
			want: AccountConfig{Type: S3Type, Bucket: "media-archive", Prefix: "videos", Quota: 15 << 30, Region: "eu-west-1", Profile: "acct1"},
		},
		{
			name: "gs uri with credentials",
			ref:  "gs://backup?quota=1000&credentials=/etc/key.json",
			want: AccountConfig{Type: GCSType, Bucket: "backup", Quota: 1000, CredentialsFile: "/etc/key.json"},
		},
		{
			name: "colon format",
			ref:  "s3:scratch?quota=1GB",
			want: AccountConfig{Type: S3Type, Bucket: "scratch", Quota: 1_000_000_000},
		},
		{name: "missing quota", ref: "s3://bucket", wantErr: true},
		{name: "bad quota", ref: "s3://bucket?quota=plenty", wantErr: true},
		{name: "unknown scheme", ref: "ftp://bucket?quota=1GB", wantErr: true},
		{name: "empty bucket", ref: "s3://?quota=1GB", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAccountRef(tt.ref)
			if tt.wantErr {
				if !errors.Is(err, zerrors.ErrInvalidAccountRef) {
					t.Fatalf("ParseAccountRef() error = %v, want ErrInvalidAccountRef", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAccountRef() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseAccountRef() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestLoadSessionFile(t *testing.T) {
	dir := t.TempDir()

	fields := filepath.Join(dir, "acct1.session")
	writeFile(t, fields, "platform: gs\nbucket: photos\nprefix: /2024/\nquota: 15GiB\ncredentials_file: /etc/key.json\n")

	cfg, err := LoadSessionFile(fields)
	if err != nil {
		t.Fatalf("LoadSessionFile() error = %v", err)
	}
	want := AccountConfig{Type: GCSType, Bucket: "photos", Prefix: "2024", Quota: 15 << 30, CredentialsFile: "/etc/key.json"}
	if cfg != want {
		t.Errorf("LoadSessionFile() = %+v, want %+v", cfg, want)
	}

	ref := filepath.Join(dir, "acct2.session")
	writeFile(t, ref, "ref: s3://archive?quota=2GiB&profile=second\n")

	cfg, err = LoadSessionFile(ref)
	if err != nil {
		t.Fatalf("LoadSessionFile() error = %v", err)
	}
	if cfg.Bucket != "archive" || cfg.Profile != "second" || cfg.Quota != 2<<30 {
		t.Errorf("LoadSessionFile() = %+v", cfg)
	}

	invalid := filepath.Join(dir, "broken.session")
	writeFile(t, invalid, "bucket: nothing\n")
	if _, err := LoadSessionFile(invalid); !errors.Is(err, zerrors.ErrInvalidAccountRef) {
		t.Errorf("expected ErrInvalidAccountRef for session without quota, got %v", err)
	}
}

func TestResolveAccountConfig_MissingSession(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "gone.session")

	_, err := ResolveAccountConfig(missing)

	var notFound *zerrors.SessionNotFoundError
	if !errors.As(err, &notFound) || notFound.Path != missing {
		t.Fatalf("expected SessionNotFoundError for %s, got %v", missing, err)
	}
}

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, dest, name, want string
	}{
		{"", "/Videos", "/home/me/clip.mp4", "Videos/clip.mp4"},
		{"team", "", "clip.mp4", "team/clip.mp4"},
		{"team", "/a/b/", "x", "team/a/b/x"},
	}
	for _, tt := range tests {
		if got := objectKey(tt.prefix, tt.dest, tt.name); got != tt.want {
			t.Errorf("objectKey(%q, %q, %q) = %q, want %q", tt.prefix, tt.dest, tt.name, got, tt.want)
		}
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestContentType(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "notes.txt")
	writeFile(t, text, "hello world\n")
	png := filepath.Join(dir, "image.bin")
	writeFile(t, png, "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

	tests := []struct {
		path string
		want string
	}{
		{text, "text/plain; charset=utf-8"},
		{png, "image/png"},
		{filepath.Join(dir, "missing"), "application/octet-stream"},
	}

	for _, tt := range tests {
		if got := contentType(tt.path); got != tt.want {
			t.Errorf("contentType(%s) = %q, want %q", filepath.Base(tt.path), got, tt.want)
		}
	}
}
