package mq

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeAcknowledger struct {
	acked   []uint64
	nacked  []uint64
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked = append(f.nacked, tag)
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func TestConsumerHandle(t *testing.T) {
	cases := []struct {
		name       string
		handlerErr error
		wantAck    bool
	}{
		{"success acks", nil, true},
		{"failure dead-letters", errors.New("crm unreachable"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			var got []byte
			c := &Consumer{
				logger: zap.NewNop(),
				handler: func(ctx context.Context, body []byte) error {
					got = body
					return tc.handlerErr
				},
			}

			c.handle(context.Background(), amqp.Delivery{
				Acknowledger: ack,
				DeliveryTag:  7,
				Body:         []byte(`{"request_id":"r1"}`),
			})

			assert.Equal(t, `{"request_id":"r1"}`, string(got))
			if tc.wantAck {
				assert.Equal(t, []uint64{7}, ack.acked)
				assert.Empty(t, ack.nacked)
			} else {
				assert.Empty(t, ack.acked)
				assert.Equal(t, []uint64{7}, ack.nacked)
				assert.False(t, ack.requeue)
			}
		})
	}
}

func TestConsumerClose_NoChannel(t *testing.T) {
	assert.NoError(t, (&Consumer{}).Close())
}
