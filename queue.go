package pglink

import "context"

// requestKind discriminates the payload of a queued request.
type requestKind int

const (
	requestConnect requestKind = iota
	requestQuery
	requestListen
	requestUnlisten
	requestUnlistenChannel // internally injected drain of an empty channel
)

func (k requestKind) String() string {
	switch k {
	case requestConnect:
		return "connect"
	case requestQuery:
		return "query"
	case requestListen:
		return "listen"
	case requestUnlisten:
		return "unlisten"
	case requestUnlistenChannel:
		return "unlisten-channel"
	default:
		return "unknown"
	}
}

// reply is the value delivered to a blocked caller when its request
// completes.
type reply struct {
	result *Result
	sub    *Subscription
	err    error
}

// request is an element of the connection's queue. replyCh is nil for
// internally injected requests; their replies are discarded.
type request struct {
	kind     requestKind
	sql      string
	args     []interface{}
	opts     *QueryOpts
	extended bool

	channel   string
	handle    Handle
	sub       *Subscription
	listenCtx context.Context

	replyCh chan reply

	// set while the request is in flight
	err error
}

func (r *request) reply(rep reply) {
	if r.replyCh == nil {
		return
	}
	// replyCh is buffered so delivery cannot block the supervisor even if the
	// caller timed out and walked away.
	r.replyCh <- rep
}

// requestQueue is the FIFO of pending requests. The head is the in-flight
// request whenever the connection is busy; it is popped only on completion so
// late-arriving errors still have a target.
type requestQueue struct {
	items []*request
}

func (q *requestQueue) push(r *request) {
	q.items = append(q.items, r)
}

// pushFront places r at the head. Only valid while no request is in flight.
func (q *requestQueue) pushFront(r *request) {
	q.items = append([]*request{r}, q.items...)
}

// injectBehindHead places r immediately after the in-flight head, so it runs
// next without disturbing the request whose messages are already on the wire.
func (q *requestQueue) injectBehindHead(r *request) {
	if len(q.items) == 0 {
		q.items = append(q.items, r)
		return
	}
	q.items = append(q.items, nil)
	copy(q.items[2:], q.items[1:len(q.items)-1])
	q.items[1] = r
}

func (q *requestQueue) peek() *request {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *requestQueue) pop() *request {
	if len(q.items) == 0 {
		return nil
	}
	r := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return r
}

func (q *requestQueue) len() int {
	return len(q.items)
}

// drain empties the queue and returns the removed requests, in order.
func (q *requestQueue) drain() []*request {
	items := q.items
	q.items = nil
	return items
}
