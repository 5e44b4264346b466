package outbox

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"example.com/raidsync/internal/events"
)

type fakeSource struct {
	mu        sync.Mutex
	pending   []Message
	published []int64
	released  []int64
	reason    string
}

func (s *fakeSource) Claim(_ context.Context, limit int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.pending)
	if n > limit {
		n = limit
	}
	batch := append([]Message(nil), s.pending[:n]...)
	s.pending = s.pending[n:]
	return batch, nil
}

func (s *fakeSource) MarkPublished(_ context.Context, ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, ids...)
	return nil
}

func (s *fakeSource) Release(_ context.Context, ids []int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = append(s.released, ids...)
	s.reason = reason
	return nil
}

type fakeWriter struct {
	mu      sync.Mutex
	err     error
	written map[string][]kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	if w.written == nil {
		w.written = make(map[string][]kafka.Message)
	}
	w.written[topic] = append(w.written[topic], msgs...)
	return nil
}

func syncedMessage(id int64, username string) Message {
	return Message{
		EventID:      id,
		AggregateID:  username,
		EventType:    events.RaidHistorySyncedType,
		Topic:        "raid_history_events",
		PartitionKey: username,
		Payload:      []byte(`{"username":"` + username + `"}`),
	}
}

func TestProcessBatchPublishesWithHeaders(t *testing.T) {
	source := &fakeSource{pending: []Message{syncedMessage(1, "alpha"), syncedMessage(2, "beta")}}
	writer := &fakeWriter{}
	dispatcher := NewDispatcher(source, writer, time.Second, 10, WithLogger(testLogger(t)))

	before := testutil.ToFloat64(deliveredCounter)
	beforeHistogram := histogramSampleCount(t)
	require.NoError(t, dispatcher.processBatch(context.Background()))
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	msgs := writer.written["raid_history_events"]
	require.Len(t, msgs, 2)
	require.Equal(t, "alpha", string(msgs[0].Key))
	require.Equal(t, `{"username":"alpha"}`, string(msgs[0].Value))
	require.Equal(t, []kafka.Header{
		{Key: "event_type", Value: []byte(events.RaidHistorySyncedType)},
		{Key: "username", Value: []byte("alpha")},
	}, msgs[0].Headers)
	require.Equal(t, []int64{1, 2}, source.published)
	require.Empty(t, source.released)
	require.InDelta(t, before+2, testutil.ToFloat64(deliveredCounter), 0.0001)
}

func TestProcessBatchReleasesOnDeliveryFailure(t *testing.T) {
	source := &fakeSource{pending: []Message{syncedMessage(7, "alpha")}}
	writer := &fakeWriter{err: errors.New("leader not available")}
	dispatcher := NewDispatcher(source, writer, time.Second, 10, WithLogger(testLogger(t)))

	before := testutil.ToFloat64(failedCounter)
	require.NoError(t, dispatcher.processBatch(context.Background()))

	require.Empty(t, source.published)
	require.Equal(t, []int64{7}, source.released)
	require.Contains(t, source.reason, "leader not available")
	require.InDelta(t, before+1, testutil.ToFloat64(failedCounter), 0.0001)
}

func TestProcessBatchRespectsBatchSize(t *testing.T) {
	source := &fakeSource{pending: []Message{syncedMessage(1, "a"), syncedMessage(2, "b"), syncedMessage(3, "c")}}
	writer := &fakeWriter{}
	dispatcher := NewDispatcher(source, writer, time.Second, 2, WithLogger(testLogger(t)))

	require.NoError(t, dispatcher.processBatch(context.Background()))
	require.Equal(t, []int64{1, 2}, source.published)
	require.NoError(t, dispatcher.processBatch(context.Background()))
	require.Equal(t, []int64{1, 2, 3}, source.published)
}

func TestStartStopsOnCancel(t *testing.T) {
	source := &fakeSource{pending: []Message{syncedMessage(1, "a")}}
	writer := &fakeWriter{}
	dispatcher := NewDispatcher(source, writer, 10*time.Millisecond, 10, WithLogger(testLogger(t)))

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Start(ctx)
	require.Eventually(t, func() bool {
		source.mu.Lock()
		defer source.mu.Unlock()
		return len(source.published) == 1
	}, time.Second, 10*time.Millisecond)
	cancel()
	dispatcher.Wait()
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

type testWriter struct {
	t *testing.T
}

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))
	return len(p), nil
}

func testLogger(t *testing.T) *log.Logger {
	return log.New(testWriter{t: t}, "", 0)
}
