package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag-go/internal/config"
	"pdf-rag-go/pkg/tasks"
)

type fakeProcessor struct {
	failures int
	calls    int
	last     tasks.IngestionTask
}

func (p *fakeProcessor) Process(_ context.Context, task tasks.IngestionTask) error {
	p.calls++
	p.last = task
	if p.calls <= p.failures {
		return errors.New("embedding backend down")
	}
	return nil
}

func newConsumer(t *testing.T, p TaskProcessor) (*miniredis.Miniredis, *Consumer) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewConsumer(p, rdb)
}

func taskBytes(t *testing.T) []byte {
	b, err := json.Marshal(tasks.IngestionTask{DocHash: "h1", Path: "/data/h1.pdf", FileName: "a.pdf"})
	require.NoError(t, err)
	return b
}

func TestHandleSuccessCommits(t *testing.T) {
	p := &fakeProcessor{}
	mr, c := newConsumer(t, p)
	require.True(t, c.Handle(context.Background(), taskBytes(t)))
	assert.Equal(t, "/data/h1.pdf", p.last.Path)
	assert.False(t, mr.Exists("kafka:attempts:h1"))
}

func TestHandleRetriesThenGivesUp(t *testing.T) {
	p := &fakeProcessor{failures: 10}
	mr, c := newConsumer(t, p)
	ctx := context.Background()

	assert.False(t, c.Handle(ctx, taskBytes(t)))
	assert.False(t, c.Handle(ctx, taskBytes(t)))
	assert.True(t, c.Handle(ctx, taskBytes(t)))

	got, err := mr.Get("kafka:attempts:h1")
	require.NoError(t, err)
	assert.Equal(t, "3", got)
	assert.Greater(t, mr.TTL("kafka:attempts:h1").Hours(), 23.0)
}

func TestHandleSuccessAfterFailureClearsCounter(t *testing.T) {
	p := &fakeProcessor{failures: 1}
	mr, c := newConsumer(t, p)
	ctx := context.Background()

	assert.False(t, c.Handle(ctx, taskBytes(t)))
	assert.True(t, mr.Exists("kafka:attempts:h1"))
	assert.True(t, c.Handle(ctx, taskBytes(t)))
	assert.False(t, mr.Exists("kafka:attempts:h1"))
}

func TestHandleMalformedMessageCommits(t *testing.T) {
	p := &fakeProcessor{}
	_, c := newConsumer(t, p)
	assert.True(t, c.Handle(context.Background(), []byte("{not json")))
	assert.Equal(t, 0, p.calls)
}

func TestBrokers(t *testing.T) {
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, brokers(config.KafkaConfig{Brokers: " k1:9092, k2:9092 ,"}))
}

func TestProduceWithoutInit(t *testing.T) {
	producer = nil
	assert.Error(t, ProduceIngestionTask(context.Background(), tasks.IngestionTask{DocHash: "x"}))
}

func TestHandleGivesUpWhenRedisUnavailable(t *testing.T) {
	p := &fakeProcessor{failures: 10}
	mr, c := newConsumer(t, p)
	ctx := context.Background()
	mr.Close()

	assert.False(t, c.Handle(ctx, taskBytes(t)))
	assert.False(t, c.Handle(ctx, taskBytes(t)))
	assert.True(t, c.Handle(ctx, taskBytes(t)))
	assert.Equal(t, 3, p.calls)
	assert.Empty(t, c.local)
}

func TestHandleLocalCounterResetsOnSuccess(t *testing.T) {
	p := &fakeProcessor{failures: 2}
	mr, c := newConsumer(t, p)
	ctx := context.Background()
	mr.Close()

	assert.False(t, c.Handle(ctx, taskBytes(t)))
	assert.False(t, c.Handle(ctx, taskBytes(t)))
	assert.True(t, c.Handle(ctx, taskBytes(t)))
	assert.Empty(t, c.local)
}
