package kinesis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postImage(id string, version string) map[string]events.DynamoDBAttributeValue {
	return map[string]events.DynamoDBAttributeValue{
		"id":             events.NewStringAttribute(id),
		"aggregate_id":   events.NewStringAttribute("post-1"),
		"aggregate_type": events.NewStringAttribute("Post"),
		"event_type":     events.NewStringAttribute("PostCreated"),
		"data":           events.NewStringAttribute(`{"post_id":"post-1"}`),
		"created_at":     events.NewStringAttribute("2026-01-15T10:30:00.123456789Z"),
		"version":        events.NewNumberAttribute(version),
	}
}

func kinesisRecord(t *testing.T, seq, eventName string, image map[string]events.DynamoDBAttributeValue) events.KinesisEventRecord {
	t.Helper()
	data, err := json.Marshal(events.DynamoDBEventRecord{
		EventName: eventName,
		Change:    events.DynamoDBStreamRecord{NewImage: image},
	})
	require.NoError(t, err)
	return events.KinesisEventRecord{
		EventID: "shard-0:" + seq,
		Kinesis: events.KinesisRecord{Data: data, SequenceNumber: seq},
	}
}

// ============================================
// Conversion Tests
// ============================================

func TestConvertDynamoDBImage(t *testing.T) {
	tests := []struct {
		name    string
		image   map[string]events.DynamoDBAttributeValue
		wantErr bool
	}{
		{name: "valid event", image: postImage("event-1", "3")},
		{name: "nil image", image: nil, wantErr: true},
		{
			name:    "missing required fields",
			image:   map[string]events.DynamoDBAttributeValue{"id": events.NewStringAttribute("event-1")},
			wantErr: true,
		},
		{
			name: "data is not json",
			image: func() map[string]events.DynamoDBAttributeValue {
				img := postImage("event-1", "1")
				img["data"] = events.NewStringAttribute("{broken")
				return img
			}(),
			wantErr: true,
		},
		{
			name: "missing version",
			image: func() map[string]events.DynamoDBAttributeValue {
				img := postImage("event-1", "1")
				delete(img, "version")
				return img
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := convertDynamoDBImage(tt.image)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "event-1", event.ID)
			assert.Equal(t, "post-1", event.AggregateID)
			assert.Equal(t, "Post", event.AggregateType)
			assert.Equal(t, "PostCreated", event.EventType)
			assert.Equal(t, 3, event.Version)
			assert.JSONEq(t, `{"post_id":"post-1"}`, string(event.Data))
		})
	}
}

func TestConvertFromDynamoDBStreamRecord_SkipsNonInsert(t *testing.T) {
	for _, name := range []string{"MODIFY", "REMOVE"} {
		event, err := ConvertFromDynamoDBStreamRecord(events.DynamoDBEventRecord{EventName: name})
		require.NoError(t, err)
		assert.Nil(t, event)
	}
}

func TestConvertFromKinesisRecord(t *testing.T) {
	event, err := ConvertFromKinesisRecord(kinesisRecord(t, "1", "INSERT", postImage("event-1", "1")))
	require.NoError(t, err)
	assert.Equal(t, "event-1", event.ID)

	_, err = ConvertFromKinesisRecord(events.KinesisEventRecord{Kinesis: events.KinesisRecord{Data: []byte("nope")}})
	assert.Error(t, err)
}

// ============================================
// Dispatch Tests
// ============================================

func TestDispatch_AllRecords(t *testing.T) {
	batch := events.KinesisEvent{Records: []events.KinesisEventRecord{
		kinesisRecord(t, "1", "INSERT", postImage("event-1", "1")),
		kinesisRecord(t, "2", "MODIFY", nil),
		kinesisRecord(t, "3", "INSERT", postImage("event-2", "2")),
	}}
	var seen []string

	resp := Dispatch(context.Background(), batch, func(_ context.Context, e store.Event) error {
		seen = append(seen, e.ID)
		return nil
	}, nil)

	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, []string{"event-1", "event-2"}, seen)
}

func TestDispatch_StopsAtFirstFailure(t *testing.T) {
	batch := events.KinesisEvent{Records: []events.KinesisEventRecord{
		kinesisRecord(t, "1", "INSERT", postImage("event-1", "1")),
		kinesisRecord(t, "2", "INSERT", postImage("event-2", "2")),
		kinesisRecord(t, "3", "INSERT", postImage("event-3", "3")),
	}}
	var seen []string

	resp := Dispatch(context.Background(), batch, func(_ context.Context, e store.Event) error {
		seen = append(seen, e.ID)
		if e.ID == "event-2" {
			return errors.New("read store down")
		}
		return nil
	}, nil)

	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "2", resp.BatchItemFailures[0].ItemIdentifier)
	assert.Equal(t, []string{"event-1", "event-2"}, seen)
}

func TestDispatch_BadRecord(t *testing.T) {
	batch := events.KinesisEvent{Records: []events.KinesisEventRecord{
		{Kinesis: events.KinesisRecord{Data: []byte("garbage"), SequenceNumber: "9"}},
	}}

	resp := Dispatch(context.Background(), batch, func(context.Context, store.Event) error { return nil }, nil)

	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "9", resp.BatchItemFailures[0].ItemIdentifier)
}
