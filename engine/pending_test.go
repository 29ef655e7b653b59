package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Penlect/emqxlwm2m/errors"
	"github.com/Penlect/emqxlwm2m/lwm2m"
)

func respFor(endpoint string, msgType lwm2m.MessageType, reqID int, path lwm2m.Path) *lwm2m.Response {
	return &lwm2m.Response{
		Endpoint: endpoint,
		MsgType:  msgType,
		ReqID:    reqID,
		Code:     lwm2m.CodeContent,
		ReqPath:  path,
	}
}

func TestPendingTable_CompleteByID(t *testing.T) {
	table := NewPendingTable()
	pr := table.Register(7, "ep1", lwm2m.TypeRead, "/3/0/9", time.Now().Add(time.Minute))

	id, ok := table.Complete(respFor("ep1", lwm2m.TypeRead, 7, "/3/0/9"))
	require.True(t, ok)
	assert.Equal(t, 7, id)
	assert.Equal(t, 0, table.Len())

	resp, err := pr.Wait()
	require.NoError(t, err)
	assert.Equal(t, 7, resp.ReqID)
}

func TestPendingTable_CompleteUnknownID(t *testing.T) {
	table := NewPendingTable()
	table.Register(7, "ep1", lwm2m.TypeRead, "/3/0/9", time.Now().Add(time.Minute))

	_, ok := table.Complete(respFor("ep1", lwm2m.TypeRead, 99, "/3/0/9"))
	assert.False(t, ok, "response with a present but unknown identifier stays unmatched")
	assert.Equal(t, 1, table.Len())
}

func TestPendingTable_SecondaryPathMatch(t *testing.T) {
	table := NewPendingTable()
	pr := table.Register(7, "ep1", lwm2m.TypeWrite, "/1/0/1", time.Now().Add(time.Minute))

	// Identifier dropped by the transport; exactly one candidate matches.
	id, ok := table.Complete(respFor("ep1", lwm2m.TypeWrite, lwm2m.NoReqID, "/1/0/1"))
	require.True(t, ok)
	assert.Equal(t, 7, id)

	resp, err := pr.Wait()
	require.NoError(t, err)
	assert.Equal(t, lwm2m.NewPath("/1/0/1"), resp.ReqPath)
}

func TestPendingTable_SecondaryMatchAmbiguous(t *testing.T) {
	table := NewPendingTable()
	table.Register(1, "ep1", lwm2m.TypeWrite, "/1/0/1", time.Now().Add(time.Minute))
	table.Register(2, "ep1", lwm2m.TypeWrite, "/1/0/1", time.Now().Add(time.Minute))

	// Two outstanding entries on the path: never guess.
	_, ok := table.Complete(respFor("ep1", lwm2m.TypeWrite, lwm2m.NoReqID, "/1/0/1"))
	assert.False(t, ok)
	assert.Equal(t, 2, table.Len())
}

func TestPendingTable_SecondaryMatchChecksTypeAndEndpoint(t *testing.T) {
	table := NewPendingTable()
	table.Register(1, "ep1", lwm2m.TypeRead, "/1/0/1", time.Now().Add(time.Minute))

	_, ok := table.Complete(respFor("ep1", lwm2m.TypeWrite, lwm2m.NoReqID, "/1/0/1"))
	assert.False(t, ok, "message type mismatch should not match")

	_, ok = table.Complete(respFor("ep2", lwm2m.TypeRead, lwm2m.NoReqID, "/1/0/1"))
	assert.False(t, ok, "endpoint mismatch should not match")
}

func TestPendingTable_Expire(t *testing.T) {
	table := NewPendingTable()
	now := time.Now()
	early := table.Register(1, "ep1", lwm2m.TypeRead, "/1/0/1", now.Add(-time.Second))
	late := table.Register(2, "ep1", lwm2m.TypeRead, "/1/0/2", now.Add(time.Minute))

	ids := table.Expire(now)
	assert.Equal(t, []int{1}, ids)
	assert.Equal(t, 1, table.Len())

	_, err := early.Wait()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTimeout)
	assert.True(t, errors.IsTransient(err))

	// The unexpired entry is untouched.
	_, ok := table.Complete(respFor("ep1", lwm2m.TypeRead, 2, "/1/0/2"))
	assert.True(t, ok)
	_, err = late.Wait()
	assert.NoError(t, err)
}

func TestPendingTable_Cancel(t *testing.T) {
	table := NewPendingTable()
	pr := table.Register(1, "ep1", lwm2m.TypeRead, "/1/0/1", time.Now().Add(time.Minute))

	require.True(t, table.Cancel(1))
	assert.False(t, table.Cancel(1), "second cancel finds nothing")

	_, err := pr.Wait()
	assert.ErrorIs(t, err, errors.ErrCancelled)

	// A late response for a cancelled command is unmatched, never resurrected.
	_, ok := table.Complete(respFor("ep1", lwm2m.TypeRead, 1, "/1/0/1"))
	assert.False(t, ok)
}

func TestPendingTable_ExactlyOneOutcome(t *testing.T) {
	table := NewPendingTable()
	table.Register(1, "ep1", lwm2m.TypeRead, "/1/0/1", time.Now().Add(time.Minute))

	_, completed := table.Complete(respFor("ep1", lwm2m.TypeRead, 1, "/1/0/1"))
	require.True(t, completed)

	// Entry already terminal: neither expiry nor cancel may touch it again.
	assert.Empty(t, table.Expire(time.Now().Add(time.Hour)))
	assert.False(t, table.Cancel(1))
}

func TestPendingTable_CompleteObserve(t *testing.T) {
	table := NewPendingTable()
	obs := table.Register(5, "ep1", lwm2m.TypeObserve, "/1/0/1", time.Now().Add(time.Minute))
	table.Register(6, "ep1", lwm2m.TypeRead, "/1/0/2", time.Now().Add(time.Minute))

	ack := respFor("ep1", lwm2m.TypeObserve, 5, "/1/0/1")
	require.True(t, table.CompleteObserve(5, ack))

	resp, err := obs.Wait()
	require.NoError(t, err)
	assert.Equal(t, lwm2m.TypeObserve, resp.MsgType)

	// Only observe entries qualify.
	assert.False(t, table.CompleteObserve(6, respFor("ep1", lwm2m.TypeObserve, 6, "/1/0/2")))
}
