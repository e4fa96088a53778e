package projection

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/example/ewaste-exchange/internal/domain/account"
	"github.com/example/ewaste-exchange/internal/domain/post"
	"github.com/example/ewaste-exchange/internal/infrastructure/store"
	"github.com/example/ewaste-exchange/internal/infrastructure/store/mocks"
	"github.com/example/ewaste-exchange/internal/readmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProjector() (*Projector, *mocks.MockReadStore) {
	readStore := mocks.NewMockReadStore()
	return NewProjector(readStore, nil), readStore
}

func makeEvent(aggregateType, aggregateID, eventType string, version int, data any) store.Event {
	raw, _ := json.Marshal(data)
	return store.Event{
		ID:            "event-" + eventType,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          raw,
		Timestamp:     time.Now(),
		Version:       version,
	}
}

func encode(t *testing.T, event store.Event) []byte {
	t.Helper()
	raw, err := json.Marshal(event)
	require.NoError(t, err)
	return raw
}

func price(v float64) *float64 { return &v }

// postEvents is a post priced at 1000 with one request to recycler-1.
func postEvents(now time.Time) []store.Event {
	return []store.Event{
		makeEvent(post.AggregateType, "post-1", post.EventPostCreated, 1, post.PostCreated{
			PostID:      "post-1",
			OwnerID:     "user-1",
			Products:    []post.Product{{WasteType: "electronics", Category: "mobile", Quantity: 1}},
			UserAddress: "Pune",
			CreatedAt:   now,
		}),
		makeEvent(post.AggregateType, "post-1", post.EventPricingCompleted, 2, post.PricingCompleted{
			PostID:      "post-1",
			Estimates:   []post.ProductEstimate{{Index: 0, SuggestedPrice: price(1000), Source: "ai"}},
			CompletedAt: now,
		}),
		makeEvent(post.AggregateType, "post-1", post.EventRequestSent, 3, post.RequestSent{
			PostID:  "post-1",
			OwnerID: "user-1",
			Request: post.RecyclerRequest{ID: "req-1", RecyclerID: "recycler-1", SentAt: now, Status: post.RequestStatusPending},
		}),
	}
}

func postFrom(t *testing.T, readStore *mocks.MockReadStore, id string) *readmodel.PostReadModel {
	t.Helper()
	data, ok := readStore.GetData(readmodel.CollectionPosts, id)
	require.True(t, ok)
	return data.(*readmodel.PostReadModel)
}

// ============================================
// Post Event Tests
// ============================================

func TestProjector_PostLifecycle(t *testing.T) {
	projector, readStore := newTestProjector()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, e := range postEvents(now) {
		require.NoError(t, projector.HandleEvent(ctx, nil, encode(t, e)))
	}

	rm := postFrom(t, readStore, "post-1")
	assert.Equal(t, "user-1", rm.OwnerID)
	assert.Equal(t, string(post.StatusWaitingRecycler), rm.Status)
	assert.Equal(t, 1000.0, rm.AISuggestedTotal)
	assert.Equal(t, 3, rm.Version)
	require.Len(t, rm.Requests, 1)

	data, ok := readStore.GetData(readmodel.CollectionRequests, "req-1")
	require.True(t, ok)
	inbox := data.(*readmodel.RecyclerRequestReadModel)
	assert.Equal(t, "post-1", inbox.PostID)
	assert.Equal(t, "recycler-1", inbox.RecyclerID)
	assert.Equal(t, "pending", inbox.Status)
	assert.Equal(t, string(post.StatusWaitingRecycler), inbox.PostStatus)
	assert.Equal(t, 1000.0, inbox.AISuggestedTotal)
}

func TestProjector_InboxFollowsRequestStatus(t *testing.T) {
	projector, readStore := newTestProjector()
	ctx := context.Background()
	now := time.Now().UTC()
	events := append(postEvents(now),
		makeEvent(post.AggregateType, "post-1", post.EventRequestAccepted, 4, post.RequestAccepted{
			PostID: "post-1", RequestID: "req-1", RecyclerID: "recycler-1", FinalPrice: price(950), AcceptedAt: now,
		}),
	)

	for _, e := range events {
		require.NoError(t, projector.Project(ctx, e))
	}

	data, _ := readStore.GetData(readmodel.CollectionRequests, "req-1")
	inbox := data.(*readmodel.RecyclerRequestReadModel)
	assert.Equal(t, "accepted", inbox.Status)
	assert.Equal(t, string(post.StatusNegotiation), inbox.PostStatus)
	assert.NotNil(t, inbox.RespondedAt)

	rm := postFrom(t, readStore, "post-1")
	assert.Equal(t, "recycler-1", rm.RecyclerID)
	assert.Equal(t, 950.0, *rm.NegotiatedPrice)
}

// streamSource serves a fixed event stream, as the event store would.
type streamSource struct {
	events []store.Event
	calls  int
}

func (s *streamSource) GetEventsFromVersion(_ context.Context, aggregateID string, fromVersion int) ([]store.Event, error) {
	s.calls++
	var out []store.Event
	for _, e := range s.events {
		if e.AggregateID == aggregateID && e.Version > fromVersion {
			out = append(out, e)
		}
	}
	return out, nil
}

func acceptedEvent(now time.Time) store.Event {
	return makeEvent(post.AggregateType, "post-1", post.EventRequestAccepted, 4, post.RequestAccepted{
		PostID: "post-1", RequestID: "req-1", RecyclerID: "recycler-1", AcceptedAt: now,
	})
}

func TestProjector_OutOfOrderWithoutSourceIsRetried(t *testing.T) {
	projector, readStore := newTestProjector()
	ctx := context.Background()
	now := time.Now().UTC()
	events := postEvents(now)
	accepted := acceptedEvent(now)

	require.NoError(t, projector.Project(ctx, events[0]))
	require.NoError(t, projector.Project(ctx, events[1]))

	err := projector.Project(ctx, accepted)
	assert.ErrorIs(t, err, ErrVersionGap)
	assert.Equal(t, 2, postFrom(t, readStore, "post-1").Version)

	require.NoError(t, projector.Project(ctx, events[2]))
	require.NoError(t, projector.Project(ctx, accepted))

	rm := postFrom(t, readStore, "post-1")
	assert.Equal(t, 4, rm.Version)
	require.Len(t, rm.Requests, 1)
	data, ok := readStore.GetData(readmodel.CollectionRequests, "req-1")
	require.True(t, ok)
	assert.Equal(t, "accepted", data.(*readmodel.RecyclerRequestReadModel).Status)
}

func TestProjector_OutOfOrderCatchesUpFromSource(t *testing.T) {
	projector, readStore := newTestProjector()
	ctx := context.Background()
	now := time.Now().UTC()
	events := append(postEvents(now), acceptedEvent(now))
	source := &streamSource{events: events}
	projector.UseEventSource(source)

	require.NoError(t, projector.Project(ctx, events[0]))
	require.NoError(t, projector.Project(ctx, events[1]))
	require.NoError(t, projector.Project(ctx, events[3]))
	require.NoError(t, projector.Project(ctx, events[2]))

	assert.Equal(t, 1, source.calls)
	rm := postFrom(t, readStore, "post-1")
	assert.Equal(t, 4, rm.Version)
	assert.Equal(t, "recycler-1", rm.RecyclerID)
	assert.Equal(t, string(post.StatusNegotiation), rm.Status)
	require.Len(t, rm.Requests, 1)

	data, ok := readStore.GetData(readmodel.CollectionRequests, "req-1")
	require.True(t, ok)
	inbox := data.(*readmodel.RecyclerRequestReadModel)
	assert.Equal(t, "accepted", inbox.Status)
	assert.Equal(t, "recycler-1", inbox.RecyclerID)
}

func TestProjector_FirstEventMissingCatchesUp(t *testing.T) {
	projector, readStore := newTestProjector()
	events := postEvents(time.Now().UTC())
	projector.UseEventSource(&streamSource{events: events})

	require.NoError(t, projector.Project(context.Background(), events[2]))

	rm := postFrom(t, readStore, "post-1")
	assert.Equal(t, 3, rm.Version)
	assert.Equal(t, "user-1", rm.OwnerID)
}

func TestProjector_RedeliveryIsIgnored(t *testing.T) {
	projector, readStore := newTestProjector()
	ctx := context.Background()
	now := time.Now().UTC()
	events := postEvents(now)
	entry := makeEvent(post.AggregateType, "post-1", post.EventNegotiationEntryAdded, 4, post.NegotiationEntryAdded{
		PostID: "post-1", ActorID: "user-1", Entry: post.NegotiationEntry{Sender: post.SenderUser, Message: "hi", CreatedAt: now},
	})

	for _, e := range append(events, entry, entry, events[1]) {
		require.NoError(t, projector.Project(ctx, e))
	}

	rm := postFrom(t, readStore, "post-1")
	assert.Len(t, rm.NegotiationHistory, 1)
	assert.Equal(t, 4, rm.Version)
}

func TestProjector_PublishProjectsInline(t *testing.T) {
	projector, readStore := newTestProjector()
	events := postEvents(time.Now().UTC())

	require.NoError(t, projector.Publish(context.Background(), "post-1", events[0]))
	require.NoError(t, projector.Publish(context.Background(), "post-1", &events[1]))
	assert.Error(t, projector.Publish(context.Background(), "post-1", "nope"))

	rm := postFrom(t, readStore, "post-1")
	assert.Equal(t, string(post.StatusAISuggested), rm.Status)
}

func TestProjector_Rebuild(t *testing.T) {
	projector, readStore := newTestProjector()
	eventStore := mocks.NewMockEventStore()
	for _, e := range postEvents(time.Now().UTC()) {
		var payload any
		require.NoError(t, json.Unmarshal(e.Data, &payload))
		require.NoError(t, eventStore.AddEvent(e.AggregateID, e.AggregateType, e.EventType, payload))
	}

	require.NoError(t, projector.Rebuild(context.Background(), eventStore))

	rm := postFrom(t, readStore, "post-1")
	assert.Equal(t, 3, rm.Version)
}

func TestProjector_InvalidPayload(t *testing.T) {
	projector, _ := newTestProjector()

	assert.Error(t, projector.HandleEvent(context.Background(), nil, []byte("not json")))

	bad := store.Event{AggregateType: post.AggregateType, AggregateID: "post-1", EventType: post.EventPostCreated, Version: 1, Data: []byte(`"x"`)}
	assert.Error(t, projector.Project(context.Background(), bad))
}

func TestProjector_UnknownAggregateIgnored(t *testing.T) {
	projector, readStore := newTestProjector()

	err := projector.Project(context.Background(), store.Event{AggregateType: "Cart", EventType: "ItemAdded"})

	require.NoError(t, err)
	assert.Empty(t, readStore.SetCalls)
}

// ============================================
// Account Event Tests
// ============================================

func TestProjector_AccountEvents(t *testing.T) {
	projector, readStore := newTestProjector()
	ctx := context.Background()
	now := time.Now().UTC()

	events := []store.Event{
		makeEvent(account.AggregateType, "acc-1", account.EventAccountRegistered, 1, account.AccountRegistered{
			AccountID: "acc-1", Email: "shop@example.com", PasswordHash: "hash-1", Name: "Shop",
			Role: account.RoleRecycler, City: "Pune", ShopName: "Green", CreatedAt: now,
		}),
		makeEvent(account.AggregateType, "acc-1", account.EventProfileUpdated, 2, account.ProfileUpdated{
			AccountID: "acc-1", Name: "Shop Two", City: "Mumbai", ShopName: "Green", UpdatedAt: now,
		}),
		makeEvent(account.AggregateType, "acc-1", account.EventImagesUpdated, 3, account.ImagesUpdated{
			AccountID: "acc-1", ShopImageURL: "https://cdn/shop.png", UpdatedAt: now,
		}),
		makeEvent(account.AggregateType, "acc-1", account.EventPasswordChanged, 4, account.PasswordChanged{
			AccountID: "acc-1", PasswordHash: "hash-2", ChangedAt: now,
		}),
	}
	for _, e := range events {
		require.NoError(t, projector.Project(ctx, e))
	}

	data, ok := readStore.GetData(readmodel.CollectionAccounts, "acc-1")
	require.True(t, ok)
	acc := data.(*readmodel.AccountReadModel)
	assert.Equal(t, "Shop Two", acc.Name)
	assert.Equal(t, "Mumbai", acc.City)
	assert.Equal(t, "recycler", acc.Role)
	assert.Equal(t, "https://cdn/shop.png", acc.ShopImageURL)
	assert.Equal(t, "hash-2", acc.PasswordHash)
}

func TestProjector_LogoutDeletesSession(t *testing.T) {
	projector, readStore := newTestProjector()
	readStore.SetData(readmodel.CollectionSessions, "sess-1", &readmodel.SessionReadModel{ID: "sess-1"})

	err := projector.Project(context.Background(), makeEvent(account.AggregateType, "acc-1", account.EventLoggedOut, 2, account.LoggedOut{
		AccountID: "acc-1", SessionID: "sess-1",
	}))

	require.NoError(t, err)
	_, ok := readStore.GetData(readmodel.CollectionSessions, "sess-1")
	assert.False(t, ok)
}
