package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository"
)

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.messages) > 0 {
		m := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func TestAuditConsumer_Run(t *testing.T) {
	reader := &fakeReader{messages: []kafka.Message{
		{Offset: 1, Value: []byte(`{"seq":11,"table_name":"products","record_id":"P1","action":"INSERT"}`)},
		{Offset: 2, Value: []byte(`not json`)},
		{Offset: 3, Value: []byte(`{"seq":12,"table_name":"orders","record_id":"O1","action":"STATUS_UPDATE"}`)},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		received []int64
		failures = 1
	)
	handler := func(_ context.Context, entry repository.AuditExportPayload) error {
		mu.Lock()
		defer mu.Unlock()
		if entry.Seq == 12 && failures > 0 {
			failures--
			return errors.New("transient")
		}
		received = append(received, entry.Seq)
		if len(received) == 2 {
			cancel()
		}
		return nil
	}

	c := NewAuditConsumer(reader, handler, zap.NewNop())
	c.retryBackoff = time.Millisecond

	require.NoError(t, c.Run(ctx))

	assert.Equal(t, []int64{11, 12}, received)
	assert.True(t, reader.closed)
	assert.Contains(t, reader.committed, int64(1))
	assert.Contains(t, reader.committed, int64(2))
}
