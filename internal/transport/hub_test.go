package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rpggio/reelwatch/internal/watch"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishReachesOnlyProjectSubscribers(t *testing.T) {
	hub := NewHub(nil)
	a, cancelA := hub.Subscribe("a")
	defer cancelA()
	b, cancelB := hub.Subscribe("b")

	hub.Publish(context.Background(), watch.Event{Type: watch.EventPollFailed, ProjectID: "a"})

	select {
	case ev := <-a:
		require.Equal(t, watch.EventPollFailed, ev.Type)
	default:
		t.Fatal("subscriber a got nothing")
	}
	require.Empty(t, b)

	cancelB()
	require.Zero(t, hub.Subscribers("b"))
	require.Equal(t, 1, hub.Subscribers("a"))
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	_, cancel := hub.Subscribe("a")
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.Publish(context.Background(), watch.Event{Type: watch.EventSnapshotChanged, ProjectID: "a"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestHub_ServeEvents(t *testing.T) {
	hub := NewHub(nil)
	status := func(projectID string) (any, error) {
		if projectID != "p1" {
			return nil, errors.New("project not watched")
		}
		return map[string]string{"project_id": projectID}, nil
	}
	router := NewRouter(RouterConfig{Events: hub.ServeEvents(status)})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	t.Cleanup(hub.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"/projects/nope/events", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"/projects/p1/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Message
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "status", first.Type)

	require.Eventually(t, func() bool { return hub.Subscribers("p1") == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish(context.Background(), watch.Event{Type: watch.EventFinalReady, ProjectID: "p1", Summary: "final video ready"})

	var next Message
	require.NoError(t, conn.ReadJSON(&next))
	require.Equal(t, "event", next.Type)
	require.NotNil(t, next.Event)
	require.Equal(t, watch.EventFinalReady, next.Event.Type)
}
