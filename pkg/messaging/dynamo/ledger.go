// Package dynamo keeps the reply-token ledger in a DynamoDB table so that
// concurrent serverless invocations share it.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"babybot/pkg/config"
	"babybot/pkg/failure"
	"babybot/pkg/messaging"
)

// PutItemAPI is the part of the DynamoDB client the ledger needs.
type PutItemAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type claim struct {
	ReplyToken string `dynamodbav:"reply_token"`
	ClaimedAt  int64  `dynamodbav:"claimed_at"`
	ExpiresAt  int64  `dynamodbav:"expires_at"`
}

// Ledger is a messaging.Ledger over a table keyed by reply_token, with
// expires_at configured as the table TTL attribute.
type Ledger struct {
	Client    PutItemAPI
	TableName string

	now func() time.Time
}

var _ messaging.Ledger = (*Ledger)(nil)

// NewLedger returns a ledger writing to table.
func NewLedger(client PutItemAPI, table string) *Ledger {
	return &Ledger{Client: client, TableName: table, now: time.Now}
}

// New loads AWS configuration and returns a ledger on cfg.DynamoTable.
func New(ctx context.Context, cfg config.LedgerConfig) (*Ledger, error) {
	if cfg.DynamoTable == "" {
		return nil, errors.New("ledger.dynamo_table is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return NewLedger(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable), nil
}

func (l *Ledger) Claim(ctx context.Context, token string, issuedAt time.Time, ttl time.Duration) error {
	now := l.now()
	if messaging.Expired(issuedAt, now, ttl) {
		return failure.Newf(failure.ReplyTokenExpired, "reply token issued at %s", issuedAt.Format(time.RFC3339))
	}

	item, err := attributevalue.MarshalMap(claim{
		ReplyToken: token,
		ClaimedAt:  now.Unix(),
		ExpiresAt:  now.Add(messaging.Retention(issuedAt, ttl)).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal reply token claim: %w", err)
	}

	_, err = l.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.TableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(reply_token)"),
	})
	if err != nil {
		var conflict *types.ConditionalCheckFailedException
		if errors.As(err, &conflict) {
			return failure.New(failure.ReplyTokenReused, "reply token already used")
		}
		return failure.Wrap(failure.UpstreamInvocationFailed, err, "store reply token claim")
	}

	return nil
}
