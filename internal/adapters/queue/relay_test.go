package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrescamacho/takaro-connector/internal/domain/gameserver"
	domainqueue "github.com/andrescamacho/takaro-connector/internal/domain/queue"
)

func TestRedisRelay_PublishReachesDomainSubscribers(t *testing.T) {
	// Arrange
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	relay := NewRedisRelay(client, "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan domainqueue.EventJob, 1)
	go func() {
		_ = relay.Subscribe(ctx, "dom-1", func(job domainqueue.EventJob) { got <- job })
	}()
	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("takaro:events:*")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Act
	err := relay.Publish(ctx, domainqueue.EventJob{
		ID: "ev-1", Type: gameserver.EventLogLine, DomainID: "dom-1", GameServerID: "gs-1",
		Event: gameserver.NewLogLine("hello", time.Now()),
	})

	// Assert
	require.NoError(t, err)
	select {
	case job := <-got:
		assert.Equal(t, "ev-1", job.ID)
		assert.Equal(t, "hello", job.Event.Msg)
	case <-time.After(2 * time.Second):
		t.Fatal("event not relayed")
	}
}

func TestRedisRelay_Channel(t *testing.T) {
	relay := NewRedisRelay(nil, "acme")

	assert.Equal(t, "acme:events:dom-9", relay.Channel("dom-9"))
}
