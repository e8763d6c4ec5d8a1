package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TenantRecord is the DynamoDB schema for one polled game server.
// ServerKey is the tenant's secret API credential; it never leaves the
// process unhashed (the snapshot writer stores only a digest).
type TenantRecord struct {
	GuildID            string    `dynamodbav:"guild_id"`
	ServerKey          string    `dynamodbav:"server_key"`
	Active             bool      `dynamodbav:"active"`
	CreatedAt          time.Time `dynamodbav:"created_at"`
	DeactivatedAt      time.Time `dynamodbav:"deactivated_at,omitempty"`
	DeactivationReason string    `dynamodbav:"deactivation_reason,omitempty"`
}

// Client is the interface for tenant store operations
type Client interface {
	GetTenant(ctx context.Context, guildID string) (*TenantRecord, error)
	CreateTenant(ctx context.Context, record *TenantRecord) error
	// FindActive returns all tenants currently flagged active.
	FindActive(ctx context.Context) ([]*TenantRecord, error)
	// Deactivate flips a tenant inactive. One-way: the poller never
	// re-activates a tenant; that requires external intervention with a
	// fresh credential.
	Deactivate(ctx context.Context, guildID, reason string) error
	ListAll(ctx context.Context) ([]*TenantRecord, error)
	DeleteTenant(ctx context.Context, guildID string) error
}

// DynamoClient implements Client using AWS DynamoDB
type DynamoClient struct {
	db        *dynamodb.Client
	tableName string
}

// New creates a new DynamoDB-backed tenant store client
func New(db *dynamodb.Client, tableName string) *DynamoClient {
	return &DynamoClient{db: db, tableName: tableName}
}

// GetTenant fetches a tenant record by guild ID
func (c *DynamoClient) GetTenant(ctx context.Context, guildID string) (*TenantRecord, error) {
	out, err := c.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"guild_id": &types.AttributeValueMemberS{Value: guildID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec TenantRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal tenant: %w", err)
	}
	return &rec, nil
}

// CreateTenant creates a new tenant record (fails if already exists)
func (c *DynamoClient) CreateTenant(ctx context.Context, record *TenantRecord) error {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal tenant: %w", err)
	}
	_, err = c.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(guild_id)"),
	})
	if err != nil {
		return fmt.Errorf("dynamodb PutItem: %w", err)
	}
	return nil
}

// FindActive returns all tenants with active = true
func (c *DynamoClient) FindActive(ctx context.Context) ([]*TenantRecord, error) {
	out, err := c.db.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(c.tableName),
		FilterExpression: aws.String("active = :t"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb Scan: %w", err)
	}
	var records []*TenantRecord
	for _, item := range out.Items {
		var rec TenantRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// Deactivate sets active = false and records when and why
func (c *DynamoClient) Deactivate(ctx context.Context, guildID, reason string) error {
	_, err := c.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"guild_id": &types.AttributeValueMemberS{Value: guildID},
		},
		UpdateExpression: aws.String("SET active = :f, deactivated_at = :at, deactivation_reason = :r"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":f":  &types.AttributeValueMemberBOOL{Value: false},
			":at": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
			":r":  &types.AttributeValueMemberS{Value: reason},
		},
		ConditionExpression: aws.String("attribute_exists(guild_id)"),
	})
	if err != nil {
		return fmt.Errorf("dynamodb UpdateItem: %w", err)
	}
	return nil
}

// ListAll returns all tenant records, active or not
func (c *DynamoClient) ListAll(ctx context.Context) ([]*TenantRecord, error) {
	out, err := c.db.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(c.tableName),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb Scan: %w", err)
	}
	var records []*TenantRecord
	for _, item := range out.Items {
		var rec TenantRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// DeleteTenant removes a tenant record
func (c *DynamoClient) DeleteTenant(ctx context.Context, guildID string) error {
	_, err := c.db.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"guild_id": &types.AttributeValueMemberS{Value: guildID},
		},
	})
	return err
}
