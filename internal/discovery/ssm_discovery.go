package discovery

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
)

// SSMAPI is the subset of the SSM client used for discovery.
type SSMAPI interface {
	ssm.GetParametersByPathAPIClient
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMDiscoverer reads account references from Parameter Store. Every
// parameter under the path is one account: its base name is the account name
// and its value is an account URI such as s3://bucket?quota=15GiB.
type SSMDiscoverer struct {
	client SSMAPI
	path   string
}

// NewSSMDiscoverer creates a discoverer for parameters under path
func NewSSMDiscoverer(client SSMAPI, path string) *SSMDiscoverer {
	return &SSMDiscoverer{client: client, path: "/" + strings.Trim(path, "/")}
}

// Discover lists the parameter path, decrypting SecureString values
func (d *SSMDiscoverer) Discover(ctx context.Context) ([]domain.AccountSource, error) {
	paginator := ssm.NewGetParametersByPathPaginator(d.client, &ssm.GetParametersByPathInput{
		Path:           aws.String(d.path),
		Recursive:      aws.Bool(true),
		WithDecryption: aws.Bool(true),
	})

	var sources []domain.AccountSource
	var errs []error
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return sources, fmt.Errorf("failed to list parameters under %s: %w", d.path, err)
		}
		for _, p := range page.Parameters {
			src, err := parameterSource(p)
			if err != nil {
				errs = append(errs, &zerrors.DiscoveryEntryError{Entry: aws.ToString(p.Name), Err: err})
				continue
			}
			sources = append(sources, src)
		}
	}
	return sources, errors.Join(errs...)
}

// Resolve fetches one parameter by full name or by account name under the path
func (d *SSMDiscoverer) Resolve(ctx context.Context, ref string) (domain.AccountSource, error) {
	name := ref
	if !strings.HasPrefix(ref, "/") {
		name = path.Join(d.path, ref)
	}

	out, err := d.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		var notFound *types.ParameterNotFound
		if errors.As(err, &notFound) {
			return domain.AccountSource{}, &zerrors.SessionNotFoundError{Path: name}
		}
		return domain.AccountSource{}, fmt.Errorf("failed to get parameter %s: %w", name, err)
	}
	if out.Parameter == nil {
		return domain.AccountSource{}, &zerrors.SessionNotFoundError{Path: name}
	}
	return parameterSource(*out.Parameter)
}

func parameterSource(p types.Parameter) (domain.AccountSource, error) {
	name := aws.ToString(p.Name)
	value := strings.TrimSpace(aws.ToString(p.Value))
	if value == "" {
		return domain.AccountSource{}, fmt.Errorf("parameter %s: %w: empty value", name, zerrors.ErrInvalidAccountRef)
	}
	return domain.AccountSource{Name: path.Base(name), Ref: value}, nil
}
