package pglink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	var q requestQueue

	a := &request{kind: requestQuery, sql: "a"}
	b := &request{kind: requestQuery, sql: "b"}
	c := &request{kind: requestQuery, sql: "c"}
	q.push(a)
	q.push(b)
	q.push(c)

	require.Equal(t, 3, q.len())
	assert.Same(t, a, q.peek())
	assert.Same(t, a, q.pop())
	assert.Same(t, b, q.pop())
	assert.Same(t, c, q.pop())
	assert.Nil(t, q.pop())
	assert.Nil(t, q.peek())
}

func TestQueuePeekDoesNotPop(t *testing.T) {
	var q requestQueue
	a := &request{kind: requestQuery}
	q.push(a)

	assert.Same(t, a, q.peek())
	assert.Same(t, a, q.peek())
	assert.Equal(t, 1, q.len())
}

func TestQueuePushFront(t *testing.T) {
	var q requestQueue
	a := &request{kind: requestQuery, sql: "a"}
	b := &request{kind: requestUnlistenChannel, channel: "b"}
	q.push(a)
	q.pushFront(b)

	assert.Same(t, b, q.pop())
	assert.Same(t, a, q.pop())
}

func TestQueueInjectBehindHead(t *testing.T) {
	var q requestQueue
	head := &request{kind: requestQuery, sql: "head"}
	next := &request{kind: requestQuery, sql: "next"}
	q.push(head)
	q.push(next)

	injected := &request{kind: requestUnlistenChannel, channel: "c"}
	q.injectBehindHead(injected)

	assert.Same(t, head, q.pop())
	assert.Same(t, injected, q.pop())
	assert.Same(t, next, q.pop())
}

func TestQueueDrain(t *testing.T) {
	var q requestQueue
	a := &request{kind: requestQuery, sql: "a"}
	b := &request{kind: requestQuery, sql: "b"}
	q.push(a)
	q.push(b)

	drained := q.drain()
	require.Len(t, drained, 2)
	assert.Same(t, a, drained[0])
	assert.Same(t, b, drained[1])
	assert.Equal(t, 0, q.len())
}

func TestRequestReplyWithoutCallerIsDiscarded(t *testing.T) {
	r := &request{kind: requestUnlistenChannel}
	// Must not panic or block.
	r.reply(reply{})
}
