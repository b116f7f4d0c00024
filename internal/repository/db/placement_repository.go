package db

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/zzenonn/zpool/internal/domain"
	zerrors "github.com/zzenonn/zpool/internal/errors"
)

// PlacementRepository records which account received each file.
type PlacementRepository struct {
	client    DynamoAPI
	tableName string
}

func NewPlacementRepository(client DynamoAPI, tableName string) *PlacementRepository {
	return &PlacementRepository{
		client:    client,
		tableName: tableName,
	}
}

// RecordPlacement stores a placement, replacing any earlier one for the same key.
func (repo *PlacementRepository) RecordPlacement(ctx context.Context, record domain.PlacementRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal placement: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(repo.tableName),
		Item:      item,
	}

	if _, err := repo.client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to record placement: %w", err)
	}
	return nil
}

// GetPlacement retrieves a placement by prefix and filename.
func (repo *PlacementRepository) GetPlacement(ctx context.Context, prefix, fileName string) (domain.PlacementRecord, error) {
	input := &dynamodb.GetItemInput{
		TableName: aws.String(repo.tableName),
		Key:       placementKey(prefix, fileName),
	}

	result, err := repo.client.GetItem(ctx, input)
	if err != nil {
		return domain.PlacementRecord{}, fmt.Errorf("failed to get placement: %w", err)
	}

	if result.Item == nil {
		return domain.PlacementRecord{}, fmt.Errorf("%w: %s/%s", zerrors.ErrPlacementNotFound, prefix, fileName)
	}

	var record domain.PlacementRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return domain.PlacementRecord{}, fmt.Errorf("failed to unmarshal placement: %w", err)
	}
	return record, nil
}

// ListPlacementsByPrefix retrieves every placement within a prefix.
func (repo *PlacementRepository) ListPlacementsByPrefix(ctx context.Context, prefix string) ([]domain.PlacementRecord, error) {
	paginator := dynamodb.NewQueryPaginator(repo.client, &dynamodb.QueryInput{
		TableName:              aws.String(repo.tableName),
		KeyConditionExpression: aws.String("#prefix = :prefix"),
		ExpressionAttributeNames: map[string]string{
			"#prefix": "prefix",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
	})

	var records []domain.PlacementRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to query placements by prefix: %w", err)
		}

		var batch []domain.PlacementRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("failed to unmarshal placements: %w", err)
		}
		records = append(records, batch...)
	}
	return records, nil
}

// DeletePlacement removes a placement by prefix and filename.
func (repo *PlacementRepository) DeletePlacement(ctx context.Context, prefix, fileName string) error {
	input := &dynamodb.DeleteItemInput{
		TableName: aws.String(repo.tableName),
		Key:       placementKey(prefix, fileName),
	}

	if _, err := repo.client.DeleteItem(ctx, input); err != nil {
		return fmt.Errorf("failed to delete placement: %w", err)
	}
	return nil
}

func placementKey(prefix, fileName string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"prefix":    &types.AttributeValueMemberS{Value: prefix},
		"file_name": &types.AttributeValueMemberS{Value: fileName},
	}
}
