package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	log "github.com/sirupsen/logrus"

	zerrors "github.com/zzenonn/zpool/internal/errors"
	"github.com/zzenonn/zpool/internal/repository/migrate"
)

// DynamoAPI is the subset of the DynamoDB client used by the ledger
type DynamoAPI interface {
	migrate.Client
	dynamodb.QueryAPIClient
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type DynamoDb struct {
	Client DynamoAPI
	Table  string
}

func NewDatabase(awsConfig aws.Config, table string) (*DynamoDb, error) {
	if table == "" {
		return nil, zerrors.ConfigNotSetError("ledger_table")
	}

	return &DynamoDb{
		Client: dynamodb.NewFromConfig(awsConfig),
		Table:  table,
	}, nil
}

// MigrateDb applies every migration whose table does not exist yet
func (d *DynamoDb) MigrateDb(ctx context.Context) error {
	for _, m := range migrate.All(d.Table) {
		exists, err := d.tableExists(ctx, m.TableName())
		if err != nil {
			return err
		}
		if exists {
			log.Debugf("Table %s already exists, skipping %s", m.TableName(), m.Version())
			continue
		}

		log.Infof("Applying migration %s", m.Version())
		if err := m.Up(ctx, d.Client); err != nil {
			return fmt.Errorf("migration %s failed: %w", m.Version(), err)
		}
	}
	return nil
}

// MigrateDown reverts migrations in reverse order
func (d *DynamoDb) MigrateDown(ctx context.Context) error {
	migrations := migrate.All(d.Table)
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		log.Infof("Reverting migration %s", m.Version())
		if err := m.Down(ctx, d.Client); err != nil {
			return fmt.Errorf("migration %s rollback failed: %w", m.Version(), err)
		}
	}
	return nil
}

// Placements returns the ledger repository backed by this database
func (d *DynamoDb) Placements() *PlacementRepository {
	return NewPlacementRepository(d.Client, d.Table)
}

func (d *DynamoDb) tableExists(ctx context.Context, table string) (bool, error) {
	_, err := d.Client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return true, nil
	}
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to describe table %s: %w", table, err)
}
