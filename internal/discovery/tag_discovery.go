package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go-v2/service/resourcegroupstaggingapi/types"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
)

// TagDiscoverer finds S3 buckets tagged as members of a pool. The quota tag
// on each bucket sets the account's capacity.
type TagDiscoverer struct {
	client   resourcegroupstaggingapi.GetResourcesAPIClient
	poolTag  string
	poolName string
	quotaTag string
}

// NewTagDiscoverer creates a discoverer for buckets tagged poolTag=poolName
func NewTagDiscoverer(client resourcegroupstaggingapi.GetResourcesAPIClient, poolTag, poolName, quotaTag string) *TagDiscoverer {
	return &TagDiscoverer{
		client:   client,
		poolTag:  poolTag,
		poolName: poolName,
		quotaTag: quotaTag,
	}
}

// Discover queries the tagging API for pool buckets, sorted by bucket name
func (d *TagDiscoverer) Discover(ctx context.Context) ([]domain.AccountSource, error) {
	paginator := resourcegroupstaggingapi.NewGetResourcesPaginator(d.client, &resourcegroupstaggingapi.GetResourcesInput{
		ResourceTypeFilters: []string{"s3"},
		TagFilters: []types.TagFilter{
			{Key: aws.String(d.poolTag), Values: []string{d.poolName}},
		},
	})

	var sources []domain.AccountSource
	var errs []error
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return sources, fmt.Errorf("failed to query tagged buckets: %w", err)
		}
		for _, m := range page.ResourceTagMappingList {
			src, err := d.bucketSource(m)
			if err != nil {
				errs = append(errs, &zerrors.DiscoveryEntryError{Entry: aws.ToString(m.ResourceARN), Err: err})
				continue
			}
			sources = append(sources, src)
		}
	}

	sort.SliceStable(sources, func(i, j int) bool { return sources[i].Name < sources[j].Name })
	return sources, errors.Join(errs...)
}

// Resolve finds a tagged bucket by name
func (d *TagDiscoverer) Resolve(ctx context.Context, ref string) (domain.AccountSource, error) {
	sources, _ := d.Discover(ctx)
	for _, src := range sources {
		if src.Name == ref {
			return src, nil
		}
	}
	return domain.AccountSource{}, &zerrors.SessionNotFoundError{Path: ref}
}

func (d *TagDiscoverer) bucketSource(m types.ResourceTagMapping) (domain.AccountSource, error) {
	parsed, err := arn.Parse(aws.ToString(m.ResourceARN))
	if err != nil {
		return domain.AccountSource{}, fmt.Errorf("resource %s: %w", aws.ToString(m.ResourceARN), err)
	}
	bucket := parsed.Resource

	var quota string
	for _, tag := range m.Tags {
		if aws.ToString(tag.Key) == d.quotaTag {
			quota = aws.ToString(tag.Value)
		}
	}
	if quota == "" {
		return domain.AccountSource{}, fmt.Errorf("bucket %s: %w: missing %s tag", bucket, zerrors.ErrInvalidAccountRef, d.quotaTag)
	}

	ref := fmt.Sprintf("s3://%s?quota=%s", bucket, url.QueryEscape(quota))
	return domain.AccountSource{Name: bucket, Ref: ref}, nil
}
