package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"

	zerrors "github.com/zzenonn/zpool/internal/errors"
)

func TestClassifyGCSError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want zerrors.TransferKind
	}{
		{"insufficient storage", &googleapi.Error{Code: http.StatusInsufficientStorage}, zerrors.CapacityExhausted},
		{"rate limited", &googleapi.Error{Code: http.StatusTooManyRequests}, zerrors.Transient},
		{"unavailable", &googleapi.Error{Code: http.StatusServiceUnavailable}, zerrors.Transient},
		{"wrapped unavailable", fmt.Errorf("writer: %w", &googleapi.Error{Code: http.StatusServiceUnavailable}), zerrors.Transient},
		{"forbidden", &googleapi.Error{Code: http.StatusForbidden, Message: "denied"}, zerrors.Fatal},
		{"network", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, zerrors.Transient},
		{"plain", errors.New("bad credentials file"), zerrors.Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyGCSError("upload gs://b/k", tt.err)
			if got := zerrors.Classify(err); got != tt.want {
				t.Errorf("Classify() = %v, want %v (%v)", got, tt.want, err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("classified error lost its cause: %v", err)
			}
		})
	}
}

func TestClassifyGCSError_ContextPassesThrough(t *testing.T) {
	for _, cause := range []error{context.Canceled, context.DeadlineExceeded} {
		err := classifyGCSError("upload", cause)
		if err != cause {
			t.Errorf("classifyGCSError(%v) = %v, want it unchanged", cause, err)
		}
	}

	if err := classifyGCSError("upload", nil); err != nil {
		t.Errorf("classifyGCSError(nil) = %v", err)
	}
}

func TestRelativeKey(t *testing.T) {
	tests := []struct {
		prefix, key, want string
	}{
		{"", "Inbox/a.txt", "Inbox/a.txt"},
		{"", "Inbox/photos/", "Inbox/photos"},
		{"team", "team/Inbox/a.txt", "Inbox/a.txt"},
		{"team", "team/Inbox/", "Inbox"},
	}

	for _, tt := range tests {
		if got := relativeKey(tt.prefix, tt.key); got != tt.want {
			t.Errorf("relativeKey(%q, %q) = %q, want %q", tt.prefix, tt.key, got, tt.want)
		}
	}
}
