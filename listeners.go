package pglink

// Handle is the opaque token returned by Listen. It identifies one
// subscription and is the argument to Unlisten.
type Handle uint64

// Notification is a message received from the PostgreSQL server via the
// LISTEN/NOTIFY mechanism.
type Notification struct {
	PID     uint32 // backend pid that sent the notification
	Channel string // channel from which notification was received
	Payload string
}

// subscriptionBufSize bounds the per-subscription notification buffer.
// Dispatch is fire-and-forget; a subscriber that falls this far behind loses
// notifications.
const subscriptionBufSize = 32

// Subscription is one Listen registration. Notifications arrive on the
// channel returned by Notifications, which is closed when the subscription
// ends for any reason.
type Subscription struct {
	handle  Handle
	channel string
	c       chan *Notification
	done    chan struct{} // closed when the registry removes the subscription
}

func (s *Subscription) Handle() Handle {
	return s.handle
}

func (s *Subscription) Channel() string {
	return s.channel
}

func (s *Subscription) Notifications() <-chan *Notification {
	return s.c
}

// listenerRegistry tracks the many-to-many relation between subscriptions and
// channels as two maps. Both maps store handles only; the invariant is that h
// is in channels[c] exactly when listeners[h].channel == c, and empty channel
// sets are deleted rather than kept.
type listenerRegistry struct {
	nextHandle Handle
	listeners  map[Handle]*Subscription
	channels   map[string]map[Handle]struct{}
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{
		listeners: make(map[Handle]*Subscription),
		channels:  make(map[string]map[Handle]struct{}),
	}
}

// add registers a subscription on channel and returns it along with whether
// it is the first subscription for that channel.
func (r *listenerRegistry) add(channel string) (sub *Subscription, first bool) {
	r.nextHandle++
	sub = &Subscription{
		handle:  r.nextHandle,
		channel: channel,
		c:       make(chan *Notification, subscriptionBufSize),
		done:    make(chan struct{}),
	}
	r.listeners[sub.handle] = sub

	set, ok := r.channels[channel]
	if !ok {
		set = make(map[Handle]struct{})
		r.channels[channel] = set
	}
	set[sub.handle] = struct{}{}

	return sub, !ok
}

// remove deletes the subscription for h from both maps. last reports whether
// the channel has no remaining subscriptions (its set is deleted). The
// subscription's done channel is closed; its notification channel is not,
// because callers may still need to deliver a final state before closing.
func (r *listenerRegistry) remove(h Handle) (sub *Subscription, last bool, ok bool) {
	sub, ok = r.listeners[h]
	if !ok {
		return nil, false, false
	}
	delete(r.listeners, h)
	close(sub.done)

	set := r.channels[sub.channel]
	delete(set, h)
	if len(set) == 0 {
		delete(r.channels, sub.channel)
		last = true
	}

	return sub, last, true
}

// subscribers returns the subscriptions listening on channel.
func (r *listenerRegistry) subscribers(channel string) []*Subscription {
	set := r.channels[channel]
	if len(set) == 0 {
		return nil
	}
	subs := make([]*Subscription, 0, len(set))
	for h := range set {
		subs = append(subs, r.listeners[h])
	}
	return subs
}

// all returns every live subscription.
func (r *listenerRegistry) all() []*Subscription {
	subs := make([]*Subscription, 0, len(r.listeners))
	for _, sub := range r.listeners {
		subs = append(subs, sub)
	}
	return subs
}

// dispatch delivers n to every subscriber of its channel. Delivery never
// blocks; a full subscriber buffer drops the notification.
func (r *listenerRegistry) dispatch(n *Notification) (delivered, dropped int) {
	for h := range r.channels[n.Channel] {
		sub := r.listeners[h]
		select {
		case sub.c <- n:
			delivered++
		default:
			dropped++
		}
	}
	return delivered, dropped
}
