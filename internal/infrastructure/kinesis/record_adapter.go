package kinesis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/logger"
)

// EventHandler consumes one decoded event store record.
type EventHandler func(ctx context.Context, event store.Event) error

// ConvertFromKinesisRecord decodes a DynamoDB change record delivered over
// Kinesis. Non-INSERT changes yield a nil event.
func ConvertFromKinesisRecord(record events.KinesisEventRecord) (*store.Event, error) {
	var change events.DynamoDBEventRecord
	if err := json.Unmarshal(record.Kinesis.Data, &change); err != nil {
		return nil, fmt.Errorf("decode change record: %w", err)
	}
	return ConvertFromDynamoDBStreamRecord(change)
}

func ConvertFromDynamoDBStreamRecord(record events.DynamoDBEventRecord) (*store.Event, error) {
	if record.EventName != "INSERT" {
		return nil, nil
	}
	return convertDynamoDBImage(record.Change.NewImage)
}

// convertDynamoDBImage reads the item written by DynamoEventStore.Append.
func convertDynamoDBImage(image map[string]events.DynamoDBAttributeValue) (*store.Event, error) {
	if image == nil {
		return nil, fmt.Errorf("change record has no new image")
	}

	str := func(name string) string {
		if v, ok := image[name]; ok && v.DataType() == events.DataTypeString {
			return v.String()
		}
		return ""
	}

	event := &store.Event{
		ID:            str("id"),
		AggregateID:   str("aggregate_id"),
		AggregateType: str("aggregate_type"),
		EventType:     str("event_type"),
	}
	if event.ID == "" || event.AggregateID == "" || event.EventType == "" {
		return nil, fmt.Errorf("incomplete event record: id=%q aggregate_id=%q event_type=%q",
			event.ID, event.AggregateID, event.EventType)
	}

	data := str("data")
	if !json.Valid([]byte(data)) {
		return nil, fmt.Errorf("event %s: data is not JSON", event.ID)
	}
	event.Data = json.RawMessage(data)

	if created := str("created_at"); created != "" {
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("event %s: created_at: %w", event.ID, err)
		}
		event.Timestamp = t
	}

	v, ok := image["version"]
	if !ok {
		return nil, fmt.Errorf("event %s: version missing", event.ID)
	}
	version, err := v.Integer()
	if err != nil {
		return nil, fmt.Errorf("event %s: version: %w", event.ID, err)
	}
	event.Version = int(version)
	return event, nil
}

// Dispatch hands every INSERT in the batch to handle, in shard order. It
// stops at the first failure and reports that record, so Lambda retries the
// batch from there and later records of the same post never overtake it.
func Dispatch(ctx context.Context, batch events.KinesisEvent, handle EventHandler, log *logger.Logger) events.KinesisEventResponse {
	if log == nil {
		log = logger.Nop()
	}
	processed := 0
	for _, record := range batch.Records {
		fail := func(err error) events.KinesisEventResponse {
			log.Error(ctx, "record failed", err, map[string]any{
				"sequence_number": record.Kinesis.SequenceNumber,
				"processed":       processed,
				"total":           len(batch.Records),
			})
			return events.KinesisEventResponse{
				BatchItemFailures: []events.KinesisBatchItemFailure{{ItemIdentifier: record.Kinesis.SequenceNumber}},
			}
		}

		event, err := ConvertFromKinesisRecord(record)
		if err != nil {
			return fail(err)
		}
		if event == nil {
			continue
		}
		if err := handle(ctx, *event); err != nil {
			return fail(err)
		}
		processed++
	}
	log.Info(ctx, "batch processed", map[string]any{"processed": processed, "total": len(batch.Records)})
	return events.KinesisEventResponse{}
}
