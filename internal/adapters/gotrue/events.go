package gotrue

import "github.com/example/account-service/internal/domain"

const subscriberBuffer = 16

// Subscribe registers a session-change listener. Events are delivered in
// order; the returned func removes the listener and closes its channel.
func (c *Client) Subscribe() (<-chan domain.SessionEvent, func()) {
	ch := make(chan domain.SessionEvent, subscriberBuffer)
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()

	return ch, func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			close(sub)
			delete(c.subs, id)
		}
	}
}

func (c *Client) emit(typ domain.SessionEventType, identity *domain.Identity) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		ch <- domain.SessionEvent{Type: typ, Identity: domain.CopyIdentity(identity), At: c.now()}
	}
}
