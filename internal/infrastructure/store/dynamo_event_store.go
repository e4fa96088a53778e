package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	// allEventsIndex partitions every event under one key so a full replay
	// can walk the table in creation order.
	allEventsIndex = "GSI1"
	allEventsKey   = "EVENTS"
)

// DynamoAPI is the subset of the DynamoDB client the event store calls.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoEventStore keeps events in a table keyed by (aggregate_id, version).
// It has no publisher: the table's Kinesis stream feeds the projector and
// notifier lambdas.
type DynamoEventStore struct {
	client         DynamoAPI
	eventsTable    string
	snapshotsTable string
}

type dynamoEvent struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	Version       int    `dynamodbav:"version"`
	ID            string `dynamodbav:"id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	EventType     string `dynamodbav:"event_type"`
	Data          string `dynamodbav:"data"`
	CreatedAt     string `dynamodbav:"created_at"`
	GSI1PK        string `dynamodbav:"gsi1pk"`
}

func (d dynamoEvent) event() Event {
	ts, _ := time.Parse(time.RFC3339Nano, d.CreatedAt)
	return Event{
		ID:            d.ID,
		AggregateID:   d.AggregateID,
		AggregateType: d.AggregateType,
		EventType:     d.EventType,
		Data:          json.RawMessage(d.Data),
		Timestamp:     ts,
		Version:       d.Version,
	}
}

type dynamoSnapshot struct {
	AggregateID   string `dynamodbav:"aggregate_id"`
	AggregateType string `dynamodbav:"aggregate_type"`
	Version       int    `dynamodbav:"version"`
	State         string `dynamodbav:"state"`
	CreatedAt     string `dynamodbav:"created_at"`
}

func NewDynamoEventStore(client DynamoAPI, eventsTable, snapshotsTable string) *DynamoEventStore {
	return &DynamoEventStore{
		client:         client,
		eventsTable:    eventsTable,
		snapshotsTable: snapshotsTable,
	}
}

// Append writes version expectedVersion+1 with a conditional put, so two
// writers racing on the same post cannot both succeed.
func (es *DynamoEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, expectedVersion int, data any) (*Event, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}

	event := Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          payload,
		Timestamp:     time.Now().UTC(),
		Version:       expectedVersion + 1,
	}
	item, err := attributevalue.MarshalMap(dynamoEvent{
		AggregateID:   event.AggregateID,
		Version:       event.Version,
		ID:            event.ID,
		AggregateType: event.AggregateType,
		EventType:     event.EventType,
		Data:          string(payload),
		CreatedAt:     event.Timestamp.Format(time.RFC3339Nano),
		GSI1PK:        allEventsKey,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event item: %w", err)
	}

	_, err = es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(es.eventsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(aggregate_id) AND attribute_not_exists(version)"),
	})
	var conditional *types.ConditionalCheckFailedException
	switch {
	case errors.As(err, &conditional):
		return nil, ErrVersionConflict
	case err != nil:
		return nil, fmt.Errorf("put event %s/%d: %w", aggregateID, event.Version, err)
	}
	return &event, nil
}

func (es *DynamoEventStore) GetEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	return es.GetEventsFromVersion(ctx, aggregateID, 0)
}

func (es *DynamoEventStore) GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error) {
	return es.queryEvents(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.eventsTable),
		KeyConditionExpression: aws.String("aggregate_id = :aid AND version > :ver"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: aggregateID},
			":ver": &types.AttributeValueMemberN{Value: strconv.Itoa(fromVersion)},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

// GetAllEvents walks the global index in creation order. Used by rebuilds.
func (es *DynamoEventStore) GetAllEvents(ctx context.Context) ([]Event, error) {
	return es.queryEvents(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(es.eventsTable),
		IndexName:              aws.String(allEventsIndex),
		KeyConditionExpression: aws.String("gsi1pk = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: allEventsKey},
		},
		ScanIndexForward: aws.Bool(true),
	})
}

// queryEvents follows LastEvaluatedKey until the result set is exhausted.
func (es *DynamoEventStore) queryEvents(ctx context.Context, in *dynamodb.QueryInput) ([]Event, error) {
	var events []Event
	for {
		out, err := es.client.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("query events: %w", err)
		}
		var page []dynamoEvent
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal events: %w", err)
		}
		for _, item := range page {
			events = append(events, item.event())
		}
		if len(out.LastEvaluatedKey) == 0 {
			return events, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// SaveSnapshot overwrites the aggregate's previous snapshot.
func (es *DynamoEventStore) SaveSnapshot(ctx context.Context, snapshot *Snapshot) error {
	item, err := attributevalue.MarshalMap(dynamoSnapshot{
		AggregateID:   snapshot.AggregateID,
		AggregateType: snapshot.AggregateType,
		Version:       snapshot.Version,
		State:         string(snapshot.State),
		CreatedAt:     snapshot.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if _, err := es.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(es.snapshotsTable),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("put snapshot %s: %w", snapshot.AggregateID, err)
	}
	return nil
}

// GetSnapshot returns nil, nil when the aggregate has none.
func (es *DynamoEventStore) GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error) {
	out, err := es.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(es.snapshotsTable),
		Key: map[string]types.AttributeValue{
			"aggregate_id": &types.AttributeValueMemberS{Value: aggregateID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", aggregateID, err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var ds dynamoSnapshot
	if err := attributevalue.UnmarshalMap(out.Item, &ds); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, ds.CreatedAt)
	return &Snapshot{
		AggregateID:   ds.AggregateID,
		AggregateType: ds.AggregateType,
		Version:       ds.Version,
		State:         json.RawMessage(ds.State),
		CreatedAt:     createdAt,
	}, nil
}
