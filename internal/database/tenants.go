package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imyashkale/mcphost/internal/logger"
	"github.com/imyashkale/mcphost/internal/models"
)

var (
	// ErrNotFound is returned when a record is not found
	ErrNotFound = fmt.Errorf("record %w", models.ErrNotFound)
	// ErrAlreadyExists is returned when a record already exists
	ErrAlreadyExists = errors.New("record already exists")
)

// tenantItem is the stored shape of a tenant
type tenantItem struct {
	Id        string `dynamodbav:"Id"`
	Name      string `dynamodbav:"Name"`
	Email     string `dynamodbav:"Email"`
	IsAdmin   bool   `dynamodbav:"IsAdmin"`
	CreatedAt int64  `dynamodbav:"CreatedAt"`
}

func (t tenantItem) toDomain() *models.Tenant {
	return &models.Tenant{
		Id:        t.Id,
		Name:      t.Name,
		Email:     t.Email,
		IsAdmin:   t.IsAdmin,
		CreatedAt: time.Unix(t.CreatedAt, 0),
	}
}

// TenantTable handles DynamoDB operations for tenants
type TenantTable struct {
	client    *Client
	tableName string
}

// NewTenantTable creates a new TenantTable
func NewTenantTable(client *Client, tableName string) *TenantTable {
	return &TenantTable{
		client:    client,
		tableName: tableName,
	}
}

func tenantKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"Id": &types.AttributeValueMemberS{Value: id},
	}
}

// CreateTenant stores a tenant unless one with the same id exists
func (tt *TenantTable) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	av, err := attributevalue.MarshalMap(tenantItem{
		Id:        tenant.Id,
		Name:      tenant.Name,
		Email:     tenant.Email,
		IsAdmin:   tenant.IsAdmin,
		CreatedAt: tenant.CreatedAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal tenant: %w", err)
	}

	_, err = tt.client.DynamoDB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(tt.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(Id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	logger.WithField("tenant_id", tenant.Id).Debug("Tenant stored in DynamoDB")
	return nil
}

// GetTenant retrieves a tenant by id
func (tt *TenantTable) GetTenant(ctx context.Context, id string) (*models.Tenant, error) {
	result, err := tt.client.DynamoDB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(tt.tableName),
		Key:       tenantKey(id),
	})
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"tenant_id": id,
			"error":     err.Error(),
		}).Error("Failed to get tenant from DynamoDB")
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	if result.Item == nil {
		return nil, ErrNotFound
	}

	var item tenantItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tenant: %w", err)
	}
	return item.toDomain(), nil
}

// GetTenantByEmail scans for the tenant with the given email
func (tt *TenantTable) GetTenantByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	tenants, err := tt.scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(tt.tableName),
		FilterExpression: aws.String("Email = :email"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":email": &types.AttributeValueMemberS{Value: email},
		},
	})
	if err != nil {
		return nil, err
	}
	if len(tenants) == 0 {
		return nil, ErrNotFound
	}
	return tenants[0], nil
}

// ListTenants returns every tenant, following scan pagination
func (tt *TenantTable) ListTenants(ctx context.Context) ([]*models.Tenant, error) {
	return tt.scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(tt.tableName),
	})
}

func (tt *TenantTable) scan(ctx context.Context, input *dynamodb.ScanInput) ([]*models.Tenant, error) {
	tenants := make([]*models.Tenant, 0)
	for {
		result, err := tt.client.DynamoDB.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenants: %w", err)
		}

		var items []tenantItem
		if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tenants: %w", err)
		}
		for _, item := range items {
			tenants = append(tenants, item.toDomain())
		}

		if len(result.LastEvaluatedKey) == 0 {
			return tenants, nil
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}
}

// DeleteTenant removes a tenant by id
func (tt *TenantTable) DeleteTenant(ctx context.Context, id string) error {
	_, err := tt.client.DynamoDB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(tt.tableName),
		Key:                 tenantKey(id),
		ConditionExpression: aws.String("attribute_exists(Id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	return nil
}
