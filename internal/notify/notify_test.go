package notify

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyKey(t *testing.T) {
	assert.Equal(t, "t1:o1:BL-261015-0001:WA_LAUNDRY_READY",
		IdempotencyKey("t1", "o1", "BL-261015-0001", TemplateLaundryReady))
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "wa.pickup_confirm", RoutingKey(TemplatePickupConfirm))
	assert.Equal(t, "wa.delivery_otw", RoutingKey(TemplateDeliveryOTW))
	assert.Equal(t, "wa.custom", RoutingKey("CUSTOM"))
}

func TestMemory_RecordsInOrder(t *testing.T) {
	m := &Memory{}
	ctx := context.Background()
	require.NoError(t, m.Enqueue(ctx, Event{Template: TemplatePickupConfirm}))
	require.NoError(t, m.Enqueue(ctx, Event{Template: TemplateOrderDone}))

	assert.Equal(t, []Template{TemplatePickupConfirm, TemplateOrderDone}, m.Templates())
	assert.Len(t, m.Events(), 2)
}

func TestMemory_Err(t *testing.T) {
	m := &Memory{Err: errors.New("broker down")}
	assert.Error(t, m.Enqueue(context.Background(), Event{}))
	assert.Empty(t, m.Events())
}

func TestLogNotifier(t *testing.T) {
	var n Notifier = LogNotifier{}
	assert.NoError(t, n.Enqueue(context.Background(), Event{Template: TemplateLaundryReady}))
	assert.NoError(t, n.Close())
}

func TestAwaitConfirm_SkipsLateConfirms(t *testing.T) {
	acks := make(chan amqp.Confirmation, 3)
	acks <- amqp.Confirmation{DeliveryTag: 1, Ack: false}
	acks <- amqp.Confirmation{DeliveryTag: 2, Ack: true}
	acks <- amqp.Confirmation{DeliveryTag: 3, Ack: true}

	require.NoError(t, awaitConfirm(context.Background(), acks, 3))
	assert.Empty(t, acks)
}

func TestAwaitConfirm_Nack(t *testing.T) {
	acks := make(chan amqp.Confirmation, 2)
	acks <- amqp.Confirmation{DeliveryTag: 4, Ack: true}
	acks <- amqp.Confirmation{DeliveryTag: 5, Ack: false}

	err := awaitConfirm(context.Background(), acks, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nacked")
}

func TestAwaitConfirm_TimeoutLeavesLaterPublishCorrect(t *testing.T) {
	acks := make(chan amqp.Confirmation, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, awaitConfirm(ctx, acks, 1), context.Canceled)

	// The broker nacks tag 1 after its publisher gave up, then acks tag 2.
	acks <- amqp.Confirmation{DeliveryTag: 1, Ack: false}
	acks <- amqp.Confirmation{DeliveryTag: 2, Ack: true}
	require.NoError(t, awaitConfirm(context.Background(), acks, 2))
}

func TestAwaitConfirm_ClosedOrSkippedTag(t *testing.T) {
	closed := make(chan amqp.Confirmation)
	close(closed)
	assert.Error(t, awaitConfirm(context.Background(), closed, 1))

	acks := make(chan amqp.Confirmation, 1)
	acks <- amqp.Confirmation{DeliveryTag: 9, Ack: true}
	err := awaitConfirm(context.Background(), acks, 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery tag 7")
}
