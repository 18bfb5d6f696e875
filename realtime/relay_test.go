package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"vibeconnect/events"
	"vibeconnect/metrics"
	"vibeconnect/utils"
)

const testChannel = "vibeconnect:test"

// runHub starts a hub that stops when the test ends.
func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(zap.NewNop(), metrics.NewCollector("test"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return hub
}

// joinClient registers a connection-less client whose queue the test reads directly.
func joinClient(t *testing.T, hub *Hub, userID string) *Client {
	t.Helper()
	c := &Client{
		id:     utils.GenerateUUID(),
		userID: userID,
		send:   make(chan []byte, sendBuffer),
		joined: make(chan struct{}),
		logger: zap.NewNop(),
	}
	require.True(t, hub.Register(c))
	return c
}

func receive(t *testing.T, c *Client) wireFrame {
	t.Helper()
	select {
	case data := <-c.send:
		var f wireFrame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return wireFrame{}
	}
}

func startRelay(t *testing.T, rdb *redis.Client, hub *Hub) *RedisRelay {
	t.Helper()
	relay := NewRedisRelay(rdb, testChannel, hub, zap.NewNop(), metrics.NewCollector("test"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return relay
}

func TestRedisRelayFansOutAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hubA, hubB := runHub(t), runHub(t)
	relayA := startRelay(t, rdb, hubA)
	startRelay(t, rdb, hubB)
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(testChannel)[testChannel] == 2
	}, 2*time.Second, 10*time.Millisecond)

	bob := joinClient(t, hubB, "bob")
	alice := joinClient(t, hubA, "alice")

	relayA.Notify("bob", events.PostCreated, map[string]string{"id": "p1"})
	f := receive(t, bob)
	assert.Equal(t, events.PostCreated, f.Event)
	assert.JSONEq(t, `{"id":"p1"}`, string(f.Data))

	relayA.Notify("alice", events.Message, map[string]string{"content": "hi"})
	assert.Equal(t, events.Message, receive(t, alice).Event)
	assert.Empty(t, bob.send)
}

func TestRedisRelayFallsBackToLocalDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { rdb.Close() })

	hub := runHub(t)
	relay := NewRedisRelay(rdb, testChannel, hub, zap.NewNop(), metrics.NewCollector("test"))
	alice := joinClient(t, hub, "alice")

	mr.Close()
	relay.Notify("alice", events.PostLiked, map[string]string{"postId": "p1"})
	assert.Equal(t, events.PostLiked, receive(t, alice).Event)
}

type numbered struct {
	Seq int `json:"seq"`
}

func receiveSeq(t *testing.T, c *Client) int {
	t.Helper()
	f := receive(t, c)
	var n numbered
	require.NoError(t, json.Unmarshal(f.Data, &n))
	return n.Seq
}

func TestHubPreservesPublishOrder(t *testing.T) {
	hub := runHub(t)
	alice := joinClient(t, hub, "alice")

	const n = 100
	for i := 0; i < n; i++ {
		hub.Notify("alice", events.Message, numbered{Seq: i})
	}
	for i := 0; i < n; i++ {
		require.Equal(t, i, receiveSeq(t, alice))
	}
}

func TestRedisRelayPreservesPublishOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	hubA, hubB := runHub(t), runHub(t)
	relayA := startRelay(t, rdb, hubA)
	startRelay(t, rdb, hubB)
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(testChannel)[testChannel] == 2
	}, 2*time.Second, 10*time.Millisecond)

	local := joinClient(t, hubA, "bob")
	remote := joinClient(t, hubB, "bob")

	const n = 100
	for i := 0; i < n; i++ {
		relayA.Notify("bob", events.Message, numbered{Seq: i})
	}
	for _, c := range []*Client{local, remote} {
		for i := 0; i < n; i++ {
			require.Equal(t, i, receiveSeq(t, c))
		}
	}
}

func TestHubDropsOfflineAndUnregistered(t *testing.T) {
	hub := runHub(t)
	alice := joinClient(t, hub, "alice")
	assert.True(t, hub.Online("alice"))

	hub.Notify("bob", events.Message, nil)

	hub.Unregister(alice)
	require.Eventually(t, func() bool { return !hub.Online("alice") }, time.Second, 5*time.Millisecond)

	_, open := <-alice.send
	assert.False(t, open)
}
