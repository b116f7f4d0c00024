package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
)

// FileDiscoverer finds session files matching a glob pattern in a directory.
type FileDiscoverer struct {
	dir     string
	pattern string
	legacy  string
}

// NewFileDiscoverer creates a discoverer for dir/pattern. A legacy single
// session file next to dir (../session.session) is picked up as well.
func NewFileDiscoverer(dir, pattern string) *FileDiscoverer {
	if pattern == "" {
		pattern = "*.session"
	}
	return &FileDiscoverer{
		dir:     dir,
		pattern: pattern,
		legacy:  filepath.Join(filepath.Dir(filepath.Clean(dir)), "session"+sessionExt(pattern)),
	}
}

// Discover globs the sessions directory. Paths are sorted so discovery
// order, and with it tie-breaking, is stable between runs.
func (d *FileDiscoverer) Discover(ctx context.Context) ([]domain.AccountSource, error) {
	matches, err := filepath.Glob(filepath.Join(d.dir, d.pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid session pattern %q: %w", d.pattern, err)
	}

	if _, err := os.Stat(d.legacy); err == nil && !contains(matches, d.legacy) {
		log.Infof("Found legacy session: %s", d.legacy)
		matches = append(matches, d.legacy)
	}
	sort.Strings(matches)

	var sources []domain.AccountSource
	var errs []error
	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return sources, err
		}
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, &zerrors.DiscoveryEntryError{Entry: path, Err: fmt.Errorf("session %s: %w", path, err)})
			continue
		}
		if info.IsDir() {
			errs = append(errs, &zerrors.DiscoveryEntryError{Entry: path, Err: fmt.Errorf("session %s: is a directory", path)})
			continue
		}
		sources = append(sources, domain.AccountSource{Name: sessionName(path), Ref: path})
	}

	if len(sources) == 0 && len(errs) == 0 {
		log.Infof("No session files found in %s", d.dir)
	}
	return sources, errors.Join(errs...)
}

// Resolve accepts a session file path or a bare account name that maps to a
// file in the sessions directory.
func (d *FileDiscoverer) Resolve(ctx context.Context, ref string) (domain.AccountSource, error) {
	candidates := []string{ref}
	if !strings.ContainsRune(ref, os.PathSeparator) {
		candidates = append(candidates, filepath.Join(d.dir, ref+sessionExt(d.pattern)))
	}

	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return domain.AccountSource{Name: sessionName(path), Ref: path}, nil
		}
	}
	return domain.AccountSource{}, &zerrors.SessionNotFoundError{Path: ref}
}

func sessionName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// sessionExt derives the file extension from a pattern like "*.session".
func sessionExt(pattern string) string {
	if ext := filepath.Ext(pattern); ext != "" && !strings.ContainsAny(ext, "*?[") {
		return ext
	}
	return ".session"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
