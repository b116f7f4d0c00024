package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
)

// fakeSSM serves parameters one per page to exercise pagination.
type fakeSSM struct {
	params []types.Parameter
}

func (f *fakeSSM) GetParametersByPath(ctx context.Context, in *ssm.GetParametersByPathInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersByPathOutput, error) {
	var matching []types.Parameter
	for _, p := range f.params {
		if strings.HasPrefix(aws.ToString(p.Name), aws.ToString(in.Path)+"/") {
			matching = append(matching, p)
		}
	}

	idx := 0
	if in.NextToken != nil {
		idx = len(aws.ToString(in.NextToken))
	}
	out := &ssm.GetParametersByPathOutput{}
	if idx < len(matching) {
		out.Parameters = matching[idx : idx+1]
		if idx+1 < len(matching) {
			out.NextToken = aws.String(strings.Repeat("x", idx+1))
		}
	}
	return out, nil
}

func (f *fakeSSM) GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	for _, p := range f.params {
		if aws.ToString(p.Name) == aws.ToString(in.Name) {
			p := p
			return &ssm.GetParameterOutput{Parameter: &p}, nil
		}
	}
	return nil, &types.ParameterNotFound{Message: aws.String("not found")}
}

func param(name, value string) types.Parameter {
	return types.Parameter{Name: aws.String(name), Value: aws.String(value)}
}

func TestSSMDiscoverer_Discover(t *testing.T) {
	fake := &fakeSSM{params: []types.Parameter{
		param("/zpool/accounts/first", "s3://bucket-a?quota=10GiB"),
		param("/zpool/accounts/second", "gs://bucket-b?quota=15GiB"),
		param("/zpool/accounts/broken", "  "),
		param("/other/accounts/x", "s3://ignored?quota=1GiB"),
	}}

	sources, err := NewSSMDiscoverer(fake, "zpool/accounts/").Discover(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, zerrors.ErrInvalidAccountRef))
	var entryErr *zerrors.DiscoveryEntryError
	require.True(t, errors.As(err, &entryErr))
	assert.Equal(t, "/zpool/accounts/broken", entryErr.Entry)
	assert.Equal(t, []domain.AccountSource{
		{Name: "first", Ref: "s3://bucket-a?quota=10GiB"},
		{Name: "second", Ref: "gs://bucket-b?quota=15GiB"},
	}, sources)
}

func TestSSMDiscoverer_Resolve(t *testing.T) {
	fake := &fakeSSM{params: []types.Parameter{
		param("/zpool/accounts/first", "s3://bucket-a?quota=10GiB"),
	}}
	d := NewSSMDiscoverer(fake, "/zpool/accounts")

	src, err := d.Resolve(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "first", src.Name)

	src, err = d.Resolve(context.Background(), "/zpool/accounts/first")
	require.NoError(t, err)
	assert.Equal(t, "s3://bucket-a?quota=10GiB", src.Ref)

	_, err = d.Resolve(context.Background(), "missing")
	var notFound *zerrors.SessionNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "/zpool/accounts/missing", notFound.Path)
}
