// Package storage provides persistence for sync state and credentials.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/peteski22/adsbridge/internal/state"
)

// DefaultStateID is the partition key value used when none is configured.
const DefaultStateID = "adsbridge"

// Item attribute names.
const (
	attrState     = "state"
	attrStateID   = "state_id"
	attrUpdatedAt = "updated_at"
)

// DynamoDBAPI defines the DynamoDB operations used by the state store.
type DynamoDBAPI interface {
	// GetItem retrieves an item from DynamoDB.
	GetItem(
		ctx context.Context,
		params *dynamodb.GetItemInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.GetItemOutput, error)

	// PutItem stores an item in DynamoDB.
	PutItem(
		ctx context.Context,
		params *dynamodb.PutItemInput,
		optFns ...func(*dynamodb.Options),
	) (*dynamodb.PutItemOutput, error)
}

// DynamoDBStateStore keeps the state document in one DynamoDB item keyed by state_id.
type DynamoDBStateStore struct {
	// client is the DynamoDB API client.
	client DynamoDBAPI

	// now returns the current time, stamped on every write.
	now func() time.Time

	// stateID is the partition key of the state item.
	stateID string

	// tableName is the name of the DynamoDB table.
	tableName string
}

// Load returns the stored state, or an empty state if no item exists.
func (d *DynamoDBStateStore) Load(ctx context.Context) (*state.State, error) {
	output, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			attrStateID: &types.AttributeValueMemberS{Value: d.stateID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting item from DynamoDB: %w", err)
	}

	if output.Item == nil {
		return state.New(), nil
	}

	attr, ok := output.Item[attrState].(*types.AttributeValueMemberS)
	if !ok {
		return state.New(), nil
	}

	st, err := state.Parse([]byte(attr.Value))
	if err != nil {
		return nil, fmt.Errorf("parsing state item: %w", err)
	}

	return st, nil
}

// Save replaces the state item.
func (d *DynamoDBStateStore) Save(ctx context.Context, st *state.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item: map[string]types.AttributeValue{
			attrStateID:   &types.AttributeValueMemberS{Value: d.stateID},
			attrState:     &types.AttributeValueMemberS{Value: string(data)},
			attrUpdatedAt: &types.AttributeValueMemberS{Value: d.now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return fmt.Errorf("putting item to DynamoDB: %w", err)
	}

	return nil
}

// DynamoDBStateStoreOption configures a DynamoDBStateStore.
type DynamoDBStateStoreOption func(*DynamoDBStateStore)

// WithStateID sets the partition key value, letting several pipelines share a table.
func WithStateID(id string) DynamoDBStateStoreOption {
	return func(d *DynamoDBStateStore) {
		if id != "" {
			d.stateID = id
		}
	}
}

// NewDynamoDBStateStore creates a new DynamoDB-backed state store.
func NewDynamoDBStateStore(client DynamoDBAPI, tableName string, opts ...DynamoDBStateStoreOption) (*DynamoDBStateStore, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if tableName == "" {
		return nil, errors.New("table name is required")
	}

	store := &DynamoDBStateStore{
		client:    client,
		now:       time.Now,
		stateID:   DefaultStateID,
		tableName: tableName,
	}

	for _, opt := range opts {
		opt(store)
	}

	return store, nil
}
