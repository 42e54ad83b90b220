package metrics

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/sectioner/core/metrics"
)

func TestInfluxSinkWritesPoints(t *testing.T) {
	var writes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v2/write" {
			atomic.AddInt32(&writes, 1)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer sink.Close()

	require.NoError(t, sink.RecordSolve(coremetrics.SolveEvent{RunID: "r1", Status: "optimal", Time: time.Now()}))
	require.NoError(t, sink.RecordRun(coremetrics.RunEvent{RunID: "r1", Iterations: 2, Time: time.Now()}))
	require.Equal(t, int32(2), atomic.LoadInt32(&writes))
}

func TestInfluxSinkFallbackOnBadEndpoint(t *testing.T) {
	sink := NewInfluxSinkWithFallback("http://127.0.0.1:1", "t", "o", "b")
	_, isNop := sink.(coremetrics.NopSink)
	require.True(t, isNop)
}
