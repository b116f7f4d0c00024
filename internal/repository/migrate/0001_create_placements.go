package migrate

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	PlacementsVersion = "20250731000000_placements_table"
)

type CreatePlacementsTable struct {
	Table string
}

func (m *CreatePlacementsTable) Version() string {
	return PlacementsVersion
}

func (m *CreatePlacementsTable) TableName() string {
	return m.Table
}

func (m *CreatePlacementsTable) Up(ctx context.Context, client Client) error {
	input := &dynamodb.CreateTableInput{
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("prefix"),
				AttributeType: types.ScalarAttributeTypeS,
			},
			{
				AttributeName: aws.String("file_name"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("prefix"),
				KeyType:       types.KeyTypeHash, // Partition Key
			},
			{
				AttributeName: aws.String("file_name"),
				KeyType:       types.KeyTypeRange, // Sort Key
			},
		},
		TableName:   aws.String(m.Table),
		BillingMode: types.BillingModePayPerRequest,
		Tags: []types.Tag{
			{
				Key:   aws.String("Purpose"),
				Value: aws.String("PlacementLedger"),
			},
		},
	}

	if _, err := client.CreateTable(ctx, input); err != nil {
		return err
	}

	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(m.Table),
	}, 5*time.Minute)
}

func (m *CreatePlacementsTable) Down(ctx context.Context, client Client) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(m.Table),
	})
	return err
}
