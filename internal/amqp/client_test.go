package amqp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"fluxo/internal/events"
	"fluxo/internal/log"
)

type fakeAcknowledger struct {
	acked    int
	nacked   int
	requeued int
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	f.nacked++
	if requeue {
		f.requeued++
	}
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func newTestClient() *Client {
	return &Client{exchangeName: "test_exchange", queueName: "test_queue", logger: log.Discard()}
}

func TestProcessDelivery(t *testing.T) {
	valid := []byte(`{"id":"abc","files":["a.xlsx"],"has_outflow":true,"timestamp":"2024-01-01T12:00:00Z"}`)

	tests := []struct {
		name        string
		body        []byte
		handlerErr  error
		wantAck     int
		wantNack    int
		wantRequeue int
		wantCalls   int
	}{
		{name: "success", body: valid, wantAck: 1, wantCalls: 1},
		{name: "handler failure requeues", body: valid, handlerErr: errors.New("backend down"), wantNack: 1, wantRequeue: 1, wantCalls: 1},
		{name: "invalid json dropped", body: []byte(`{`), wantNack: 1},
		{name: "missing id dropped", body: []byte(`{"files":["a.xlsx"]}`), wantNack: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			calls := 0
			handler := func(_ context.Context, msg *DatasetChangedMessage) error {
				calls++
				if msg.ID != "abc" || !msg.HasOutflow {
					t.Errorf("unexpected message %+v", msg)
				}
				return tt.handlerErr
			}

			newTestClient().process(context.Background(), amqp091.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: tt.body}, handler)

			if ack.acked != tt.wantAck || ack.nacked != tt.wantNack || ack.requeued != tt.wantRequeue {
				t.Errorf("ack=%d nack=%d requeue=%d", ack.acked, ack.nacked, ack.requeued)
			}
			if calls != tt.wantCalls {
				t.Errorf("handler calls=%d want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestPublishWithoutConnection(t *testing.T) {
	c := newTestClient()

	if err := c.Publish(context.Background(), events.Event{Kind: events.DataChanged, ID: "x"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if err := c.Publish(context.Background(), events.Event{Kind: "other"}); err != nil {
		t.Errorf("other kinds should be ignored, got %v", err)
	}
}

func TestPublishRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := newTestClient().Publish(ctx, events.Event{Kind: events.DataChanged}); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestConsumeWithoutConnection(t *testing.T) {
	err := newTestClient().Consume(context.Background(), func(context.Context, *DatasetChangedMessage) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestDatasetChangedMessageFromEvent(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	e := events.Event{ID: "id-1", Kind: events.DataChanged, Files: []string{"a.xlsx"}, HasOutflow: true, Message: "ok", At: at}

	msg := NewDatasetChangedMessage(e)
	body, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	parsed, err := DatasetChangedMessageFromJSON(body)
	if err != nil {
		t.Fatalf("DatasetChangedMessageFromJSON: %v", err)
	}

	back := parsed.Event()
	if back.ID != e.ID || back.Kind != events.DataChanged || !back.At.Equal(at) || len(back.Files) != 1 || !back.HasOutflow {
		t.Errorf("round trip lost data: %+v", back)
	}
}

func TestNewDatasetChangedMessageStampsTime(t *testing.T) {
	msg := NewDatasetChangedMessage(events.Event{ID: "x"})
	if msg.Timestamp.IsZero() || time.Since(msg.Timestamp) > time.Second {
		t.Errorf("timestamp=%v", msg.Timestamp)
	}
}
