package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/genclean-otp/internal/domain"
)

// codeItem is the otp_codes row. PK: otp_key. ExpiresAt is the DynamoDB TTL
// attribute; DynamoDB reaps lazily, so reads also filter on it.
type codeItem struct {
	Key        string    `dynamodbav:"otp_key"`
	Email      string    `dynamodbav:"email"`
	Code       string    `dynamodbav:"code"`
	IssuedAt   time.Time `dynamodbav:"issued_at"`
	ValidUntil time.Time `dynamodbav:"valid_until"`
	ExpiresAt  int64     `dynamodbav:"expires_at"` // TTL (Unix seconds)
}

// CodeRepo stores OTP entries in DynamoDB.
type CodeRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewCodeRepo(client API, tableName string) *CodeRepo {
	return &CodeRepo{client: client, tableName: tableName, now: time.Now}
}

func (r *CodeRepo) Get(ctx context.Context, key string) (*domain.OTPEntry, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("otp_key", key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("otp entry not found: %w", domain.ErrNotFound)
	}
	var it codeItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal otp entry: %w", err)
	}
	if it.ExpiresAt < r.now().Unix() {
		return nil, fmt.Errorf("otp entry not found: %w", domain.ErrNotFound)
	}
	return &domain.OTPEntry{Email: it.Email, Code: it.Code, IssuedAt: it.IssuedAt, ExpiresAt: it.ValidUntil}, nil
}

func (r *CodeRepo) Set(ctx context.Context, key string, e *domain.OTPEntry, ttl time.Duration) error {
	item, err := attributevalue.MarshalMap(codeItem{
		Key:        key,
		Email:      e.Email,
		Code:       e.Code,
		IssuedAt:   e.IssuedAt,
		ValidUntil: e.ExpiresAt,
		ExpiresAt:  r.now().Add(ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal otp entry: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *CodeRepo) Delete(ctx context.Context, key string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("otp_key", key),
	})
	return err
}

// CompareAndDelete is a conditional DeleteItem, so two concurrent verifications
// cannot both consume the same code.
func (r *CodeRepo) CompareAndDelete(ctx context.Context, key, code string) (bool, error) {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("otp_key", key),
		ConditionExpression: aws.String("#c = :c AND #e >= :now"),
		ExpressionAttributeNames: map[string]string{
			"#c": "code",
			"#e": "expires_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c":   &types.AttributeValueMemberS{Value: code},
			":now": numValue(r.now().Unix()),
		},
	})
	if isConditionFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
