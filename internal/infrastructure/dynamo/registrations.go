package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/genclean-otp/internal/domain"
)

// registrationItem is the registrations row. PK: email.
type registrationItem struct {
	Email        string    `dynamodbav:"email"`
	PasswordHash string    `dynamodbav:"password_hash"`
	FirstName    string    `dynamodbav:"first_name"`
	LastName     string    `dynamodbav:"last_name"`
	Phone        *string   `dynamodbav:"phone"`
	Delivery     string    `dynamodbav:"delivery"`
	State        string    `dynamodbav:"state"`
	CreatedAt    time.Time `dynamodbav:"created_at"`
	UpdatedAt    time.Time `dynamodbav:"updated_at"`
	ValidUntil   time.Time `dynamodbav:"valid_until"`
	ExpiresAt    int64     `dynamodbav:"expires_at"` // TTL (Unix seconds)
}

// RegistrationRepo stores staged sign-ups in DynamoDB.
type RegistrationRepo struct {
	client    API
	tableName string
	now       func() time.Time
}

func NewRegistrationRepo(client API, tableName string) *RegistrationRepo {
	return &RegistrationRepo{client: client, tableName: tableName, now: time.Now}
}

func (r *RegistrationRepo) Get(ctx context.Context, email string) (*domain.Registration, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey("email", email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("registration not found: %w", domain.ErrNotFound)
	}
	var it registrationItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal registration: %w", err)
	}
	if it.ExpiresAt < r.now().Unix() {
		return nil, fmt.Errorf("registration not found: %w", domain.ErrNotFound)
	}
	return &domain.Registration{
		Email:        it.Email,
		PasswordHash: it.PasswordHash,
		FirstName:    it.FirstName,
		LastName:     it.LastName,
		Phone:        it.Phone,
		Delivery:     it.Delivery,
		State:        domain.RegistrationState(it.State),
		CreatedAt:    it.CreatedAt,
		UpdatedAt:    it.UpdatedAt,
		ExpiresAt:    it.ValidUntil,
	}, nil
}

func (r *RegistrationRepo) Put(ctx context.Context, reg *domain.Registration, ttl time.Duration) error {
	item, err := attributevalue.MarshalMap(registrationItem{
		Email:        reg.Email,
		PasswordHash: reg.PasswordHash,
		FirstName:    reg.FirstName,
		LastName:     reg.LastName,
		Phone:        reg.Phone,
		Delivery:     reg.Delivery,
		State:        string(reg.State),
		CreatedAt:    reg.CreatedAt,
		UpdatedAt:    reg.UpdatedAt,
		ValidUntil:   reg.ExpiresAt,
		ExpiresAt:    r.now().Add(ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

func (r *RegistrationRepo) Delete(ctx context.Context, email string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("email", email),
	})
	return err
}
