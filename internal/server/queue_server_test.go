package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reno99986/sync-and-distributed/internal/queue"
	"github.com/reno99986/sync-and-distributed/internal/queuestore"
	"github.com/reno99986/sync-and-distributed/internal/transport"
)

func newTestQueueServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zap.NewNop().Sugar()
	tc := transport.New(time.Second)
	router := queue.New("self", []string{"self"}, 10, queuestore.NewMem(), tc, time.Minute, time.Hour, logger)
	srv := NewQueueServer(router, NewMetrics())
	return httptest.NewServer(srv.Router())
}

func TestQueueServerProduceConsumeAck(t *testing.T) {
	srv := newTestQueueServer(t)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/produce", queue.ProduceRequest{Queue: "q", Message: "hello"})
	var produceResp queue.ProduceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&produceResp))
	assert.Equal(t, queue.StatusSuccess, produceResp.Status)

	resp = postJSON(t, srv.URL+"/consume", queue.ConsumeRequest{Queue: "q", ConsumerID: "c1"})
	var consumeResp queue.ConsumeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&consumeResp))
	require.NotNil(t, consumeResp.Message)
	assert.Equal(t, "hello", *consumeResp.Message)

	resp = postJSON(t, srv.URL+"/ack", queue.AckRequest{MessageID: consumeResp.MessageID})
	var ackResp queue.AckResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ackResp))
	assert.Equal(t, queue.StatusAcked, ackResp.Status)
}

func TestQueueServerStatus(t *testing.T) {
	srv := newTestQueueServer(t)
	defer srv.Close()

	postJSON(t, srv.URL+"/produce", queue.ProduceRequest{Queue: "q", Message: "m1"})

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	var status queue.StatusSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "self", status.NodeID)
	assert.EqualValues(t, 1, status.Queues["q"])
}
