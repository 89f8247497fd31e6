package broker

import (
	"context"
	"encoding/json"
	"testing"

	"reward-service/internal/models"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedEvent struct {
	key   string
	event interface{}
}

type capturingPublisher struct {
	published []capturedEvent
}

func (p *capturingPublisher) PublishEvent(_ context.Context, key string, event interface{}) error {
	p.published = append(p.published, capturedEvent{key: key, event: event})
	return nil
}

func TestBusKeysEventsByAggregate(t *testing.T) {
	pub := &capturingPublisher{}
	bus := NewBus(pub)
	accountID := uuid.New()
	listingID := uuid.New()

	err := bus.PublishScanApproved(context.Background(), &models.ScanApprovedEvent{
		BaseEvent: NewBase(models.EventTypeScanApproved),
		AccountID: accountID,
	})
	require.NoError(t, err)

	err = bus.PublishListingSold(context.Background(), &models.ListingSoldEvent{
		BaseEvent: NewBase(models.EventTypeListingSold),
		ListingID: listingID,
	})
	require.NoError(t, err)

	require.Len(t, pub.published, 2)
	assert.Equal(t, "account-"+accountID.String(), pub.published[0].key)
	assert.Equal(t, "listing-"+listingID.String(), pub.published[1].key)
}

func TestNewBaseStampsEnvelope(t *testing.T) {
	base := NewBase(models.EventTypeLevelUp)

	assert.Equal(t, models.EventTypeLevelUp, base.EventType)
	assert.NotEmpty(t, base.EventID)
	assert.False(t, base.Timestamp.IsZero())
}

func TestEventHandlerRoutesByType(t *testing.T) {
	handler := NewEventHandler()

	var gotApproved *models.ScanApprovedEvent
	handler.OnScanApproved(func(_ context.Context, e *models.ScanApprovedEvent) error {
		gotApproved = e
		return nil
	})

	event := &models.ScanApprovedEvent{
		BaseEvent:   NewBase(models.EventTypeScanApproved),
		ScanID:      uuid.New(),
		AccountID:   uuid.New(),
		Name:        "denim jacket",
		FinalPoints: 20,
	}
	payload, err := json.Marshal(event)
	require.NoError(t, err)

	err = handler.HandleMessage(context.Background(), kafka.Message{Value: payload})
	require.NoError(t, err)

	require.NotNil(t, gotApproved)
	assert.Equal(t, event.ScanID, gotApproved.ScanID)
	assert.Equal(t, 20, gotApproved.FinalPoints)
}

func TestEventHandlerIgnoresUnregisteredTypes(t *testing.T) {
	handler := NewEventHandler()

	payload, err := json.Marshal(&models.LevelUpEvent{
		BaseEvent: NewBase(models.EventTypeLevelUp),
	})
	require.NoError(t, err)

	// No handler registered for LevelUp: the message is acknowledged, not
	// retried forever.
	assert.NoError(t, handler.HandleMessage(context.Background(), kafka.Message{Value: payload}))
}

func TestEventHandlerRejectsGarbage(t *testing.T) {
	handler := NewEventHandler()
	err := handler.HandleMessage(context.Background(), kafka.Message{Value: []byte("not json")})
	assert.Error(t, err)
}
