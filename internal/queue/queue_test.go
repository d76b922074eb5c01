package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportJobRoundTrip(t *testing.T) {
	job := ExportJob{ClassID: "class-1", Year: 2024, Month: 2}
	body, err := job.Encode()
	require.NoError(t, err)

	decoded, err := DecodeExportJob(body)
	require.NoError(t, err)
	assert.Equal(t, job, decoded)
}

func TestDecodeExportJobRejectsGarbage(t *testing.T) {
	_, err := DecodeExportJob([]byte("not json"))
	assert.Error(t, err)
}

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	require.NoError(t, q.Publish(ctx, Message{Type: "export", Body: []byte("x")}))

	messages, err := q.Consume(ctx)
	require.NoError(t, err)

	select {
	case msg := <-messages:
		assert.Equal(t, "export", msg.Type)
		assert.Equal(t, []byte("x"), msg.Body)
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: "export", Body: []byte(`{"classId":"a|b"}`)}
	got, err := deserialize(serialize(msg))
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}
