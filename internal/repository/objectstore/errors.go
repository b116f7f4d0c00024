package objectstore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"
	"google.golang.org/api/googleapi"

	zerrors "github.com/zzenonn/zpool/internal/errors"
)

var (
	s3FullCodes = map[string]bool{
		"QuotaExceeded":                 true,
		"InsufficientStorage":           true,
		"ServiceQuotaExceededException": true,
		"StorageLimitExceeded":          true,
	}
	s3TransientCodes = map[string]bool{
		"SlowDown":            true,
		"Throttling":          true,
		"ThrottlingException": true,
		"RequestTimeout":      true,
		"InternalError":       true,
		"ServiceUnavailable":  true,
	}
	s3NotFoundCodes = map[string]bool{
		"NotFound":  true,
		"NoSuchKey": true,
	}
)

// classifyS3Error wraps an S3 error with ErrAccountFull or ErrTransient when
// the failure is one the pool reacts to. Everything else stays fatal.
func classifyS3Error(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch {
		case s3FullCodes[ae.ErrorCode()]:
			return fmt.Errorf("%w: %s: %w", zerrors.ErrAccountFull, op, err)
		case s3TransientCodes[ae.ErrorCode()]:
			return fmt.Errorf("%w: %s: %w", zerrors.ErrTransient, op, err)
		}
	}

	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		if kind := classifyStatus(re.HTTPStatusCode()); kind != nil {
			return fmt.Errorf("%w: %s: %w", kind, op, err)
		}
	}

	return classifyNetwork(op, err)
}

// classifyGCSError does the same for Google Cloud Storage errors.
func classifyGCSError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if kind := classifyStatus(gerr.Code); kind != nil {
			return fmt.Errorf("%w: %s: %w", kind, op, err)
		}
	}

	return classifyNetwork(op, err)
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusInsufficientStorage:
		return zerrors.ErrAccountFull
	case code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return zerrors.ErrTransient
	default:
		return nil
	}
}

func classifyNetwork(op string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %s: %w", zerrors.ErrTransient, op, err)
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return fmt.Errorf("%w: %s: %w", zerrors.ErrTransient, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isS3NotFound(err error) bool {
	var ae smithy.APIError
	if errors.As(err, &ae) && s3NotFoundCodes[ae.ErrorCode()] {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
