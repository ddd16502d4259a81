package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"zava-chat/internal/domain"
)

const (
	pkPrefix    = "EXCHANGE#"
	skPrefix    = "AT#"
	ttlDuration = 30 * 24 * time.Hour // 30-day TTL
)

// dynamodbAPI is the minimal DynamoDB interface required by ExchangeLog.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// ExchangeLog appends relay exchanges to a DynamoDB table for auditing.
// Nothing reads the table back; it is not conversation state.
type ExchangeLog struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
}

// New creates a new ExchangeLog.
func New(api dynamodbAPI, tableName string) (*ExchangeLog, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &ExchangeLog{api: api, tableName: tableName, now: time.Now}, nil
}

// Record persists one exchange, filling in the id, keys, timestamp and TTL
// when they are empty. Each exchange is written once.
func (l *ExchangeLog) Record(ctx context.Context, ex domain.Exchange) error {
	ex = l.stamp(ex)

	_, err := l.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.tableName),
		Item:                exchangeItem(ex),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: Record: %w", err)
	}
	return nil
}

func (l *ExchangeLog) stamp(ex domain.Exchange) domain.Exchange {
	now := l.now().UTC()
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.PK == "" {
		ex.PK = pkPrefix + ex.ID
	}
	if ex.SK == "" {
		ex.SK = skPrefix + now.Format(time.RFC3339Nano)
	}
	if ex.CreatedAt == "" {
		ex.CreatedAt = now.Format(time.RFC3339)
	}
	if ex.TTL == 0 {
		ex.TTL = now.Add(ttlDuration).Unix()
	}
	return ex
}

func exchangeItem(ex domain.Exchange) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: ex.PK},
		"SK":         &types.AttributeValueMemberS{Value: ex.SK},
		"exchangeId": &types.AttributeValueMemberS{Value: ex.ID},
		"message":    &types.AttributeValueMemberS{Value: ex.Message},
		"reply":      &types.AttributeValueMemberS{Value: ex.Reply},
		"outcome":    &types.AttributeValueMemberS{Value: ex.Outcome},
		"createdAt":  &types.AttributeValueMemberS{Value: ex.CreatedAt},
		"ttl":        &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ex.TTL)},
	}
	if ex.CorrelationID != "" {
		item["correlationId"] = &types.AttributeValueMemberS{Value: ex.CorrelationID}
	}
	if ex.StatusCode != 0 {
		item["statusCode"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ex.StatusCode)}
	}
	return item
}
