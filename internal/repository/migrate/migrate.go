// Package migrate holds the DynamoDB table migrations for the placement ledger.
package migrate

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Client is the subset of the DynamoDB API migrations need
type Client interface {
	dynamodb.DescribeTableAPIClient
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *dynamodb.DeleteTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteTableOutput, error)
}

// Migration creates or drops one table
type Migration interface {
	Version() string
	TableName() string
	Up(ctx context.Context, client Client) error
	Down(ctx context.Context, client Client) error
}

// All returns the migrations for a ledger stored in table, in apply order
func All(table string) []Migration {
	return []Migration{
		&CreatePlacementsTable{Table: table},
	}
}
