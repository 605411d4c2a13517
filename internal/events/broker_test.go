package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strptr(s string) *string { return &s }

func TestBrokerDeliversToOwnUser(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch1, cancel1 := b.Subscribe("u1")
	defer cancel1()
	ch2, cancel2 := b.Subscribe("u2")
	defer cancel2()

	b.Publish(Change{UserID: "u1", Kind: ChangeCreated, ID: "f1", ParentID: strptr("p1")})

	got := <-ch1
	assert.Equal(t, ChangeCreated, got.Kind)
	assert.Equal(t, "f1", got.ID)
	require.NotNil(t, got.ParentID)
	assert.Equal(t, "p1", *got.ParentID)

	select {
	case change := <-ch2:
		t.Fatalf("u2 received u1's change: %+v", change)
	default:
	}
}

func TestBrokerFanOut(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	chA, cancelA := b.Subscribe("u1")
	defer cancelA()
	chB, cancelB := b.Subscribe("u1")
	defer cancelB()

	b.Publish(Change{UserID: "u1", Kind: ChangeDeleted, ID: "f1"})

	assert.Equal(t, "f1", (<-chA).ID)
	assert.Equal(t, "f1", (<-chB).ID)
}

func TestBrokerDropsWhenSubscriberLags(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch, cancel := b.Subscribe("u1")
	defer cancel()

	// Nobody drains ch; overflow past the buffer must not block.
	for i := 0; i < subscriberBuffer*2; i++ {
		b.Publish(Change{UserID: "u1", Kind: ChangeUpdated, ID: "f1"})
	}
	assert.Len(t, ch, subscriberBuffer)
}

func TestBrokerCancelClosesChannel(t *testing.T) {
	b := NewBroker()
	defer b.Close()

	ch, cancel := b.Subscribe("u1")
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel is a no-op.
	b.Publish(Change{UserID: "u1", Kind: ChangeMoved, ID: "f1"})

	// Cancelling twice is safe.
	cancel()
}

func TestBrokerClose(t *testing.T) {
	b := NewBroker()
	ch, cancel := b.Subscribe("u1")
	defer cancel()

	b.Close()
	_, open := <-ch
	assert.False(t, open)

	// Subscribing after close yields a closed channel.
	ch2, cancel2 := b.Subscribe("u1")
	defer cancel2()
	_, open = <-ch2
	assert.False(t, open)

	b.Publish(Change{UserID: "u1", Kind: ChangeCreated, ID: "f1"})
	b.Close()
}

func TestChangeJSONOmitsUserID(t *testing.T) {
	data, err := json.Marshal(Change{UserID: "u1", Kind: ChangeRestored, ID: "f1"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "user_id")
	assert.NotContains(t, decoded, "parent_id")
	assert.Equal(t, "restored", decoded["kind"])
}

func TestMemoryRecorder(t *testing.T) {
	r := NewMemoryRecorder()
	ctx := context.Background()

	r.Record(ctx, Event{Action: "file_upload", ResourceType: "file", Status: StatusSuccess})
	r.Record(ctx, Event{Action: "file_delete", ResourceType: "file", Status: StatusFailure})

	evs := r.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, "file_upload", evs[0].Action)
	assert.Equal(t, StatusFailure, evs[1].Status)

	// Snapshot is a copy, not a view.
	evs[0].Action = "mutated"
	assert.Equal(t, "file_upload", r.Events()[0].Action)
}

func TestEventValidate(t *testing.T) {
	valid := Event{Action: "file_upload", ResourceType: "file", Status: StatusSuccess}
	assert.NoError(t, valid.Validate())

	missing := valid
	missing.Action = ""
	assert.Error(t, missing.Validate())
}
