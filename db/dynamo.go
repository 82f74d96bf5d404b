package db

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoSessionStore keeps session rows in a DynamoDB table keyed by
// meetingId.
type DynamoSessionStore struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoSessionStore(
	client *dynamodb.Client,
	table string,
) *DynamoSessionStore {
	return &DynamoSessionStore{client: client, table: table}
}

func (s *DynamoSessionStore) Put(ctx context.Context, session Session) error {
	item, err := attributevalue.MarshalMap(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}

	return nil
}

func (s *DynamoSessionStore) GetByMeetingID(
	ctx context.Context,
	meetingID string,
) (Session, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"meetingId": &types.AttributeValueMemberS{Value: meetingID},
		},
	})
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}

	if out.Item == nil {
		return Session{}, ErrSessionNotFound
	}

	var session Session
	if err := attributevalue.UnmarshalMap(out.Item, &session); err != nil {
		return Session{}, fmt.Errorf("unmarshal session: %w", err)
	}

	return session, nil
}

func (s *DynamoSessionStore) Delete(
	ctx context.Context,
	meetingID string,
) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"meetingId": &types.AttributeValueMemberS{Value: meetingID},
		},
	})
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	return nil
}

// DynamoCounter is a single-row atomic counter using an ADD update
// expression, so concurrent increments never lose writes.
type DynamoCounter struct {
	client *dynamodb.Client
	table  string
}

func NewDynamoCounter(client *dynamodb.Client, table string) *DynamoCounter {
	return &DynamoCounter{client: client, table: table}
}

func (c *DynamoCounter) Add(
	ctx context.Context,
	name string,
	delta int64,
) (int64, error) {
	out, err := c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: name},
		},
		UpdateExpression: aws.String("ADD #calls :val"),
		ExpressionAttributeNames: map[string]string{
			"#calls": "calls",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":val": &types.AttributeValueMemberN{
				Value: strconv.FormatInt(delta, 10),
			},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, fmt.Errorf("update counter: %w", err)
	}

	attr, ok := out.Attributes["calls"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("counter %q returned no numeric value", name)
	}

	value, err := strconv.ParseInt(attr.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse counter value: %w", err)
	}

	return value, nil
}
