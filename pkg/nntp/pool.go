package nntp

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// waitResult is delivered to a blocked Get() caller once a connection becomes
// available, either handed off directly from Put/Discard or dialed fresh.
type waitResult struct {
	c   *Client
	err error
}

// ClientPool is a fixed-capacity pool of authenticated NNTP connections.
// Capacity is tracked as availSlots (never-yet-dialed permits) plus idle
// plus checked-out plus beingReplaced, so availSlots+len(idle)+active+
// beingReplaced always equals maxConn.
type ClientPool struct {
	host    string
	port    int
	ssl     bool
	user    string
	pass    string
	maxConn int

	mu            sync.Mutex
	idle          []*Client
	waiters       []chan waitResult
	availSlots    int
	beingReplaced int
	closed        bool

	// dialFunc opens and authenticates a new connection; overridable in
	// tests to avoid a real network dial.
	dialFunc func() (*Client, error)

	bytesRead int64
	lastSpeed float64
	lastCheck time.Time
}

func NewClientPool(host string, port int, ssl bool, user, pass string, maxConn int) *ClientPool {
	p := &ClientPool{
		host:       host,
		port:       port,
		ssl:        ssl,
		user:       user,
		pass:       pass,
		maxConn:    maxConn,
		availSlots: maxConn,
		lastCheck:  time.Now(),
	}
	p.dialFunc = p.dialReal

	go p.keepAliveLoop()

	return p
}

// dial opens a new connection via dialFunc.
func (p *ClientPool) dial() (*Client, error) {
	return p.dialFunc()
}

// dialReal opens a new connection and authenticates it against the
// configured provider. Caller must have already reserved a slot (availSlots
// or beingReplaced accounting).
func (p *ClientPool) dialReal() (*Client, error) {
	c, err := NewClient(p.host, p.port, p.ssl)
	if err != nil {
		return nil, err
	}
	c.SetPool(p)
	if err := c.Authenticate(p.user, p.pass); err != nil {
		c.Quit()
		return nil, err
	}
	return c, nil
}

// Get returns a connection, blocking in FIFO order if the pool is at
// capacity and every connection is checked out.
func (p *ClientPool) Get() (*Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("nntp: pool closed")
	}
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c, nil
	}
	if p.availSlots > 0 {
		p.availSlots--
		p.mu.Unlock()
		c, err := p.dial()
		if err != nil {
			p.mu.Lock()
			p.availSlots++
			p.mu.Unlock()
			return nil, err
		}
		return c, nil
	}

	ch := make(chan waitResult, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	res := <-ch
	return res.c, res.err
}

// TryGet attempts to get a client without blocking.
func (p *ClientPool) TryGet() (*Client, bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, false
	}
	if n := len(p.idle); n > 0 {
		c := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return c, true
	}
	if p.availSlots > 0 {
		p.availSlots--
		p.mu.Unlock()
		c, err := p.dial()
		if err != nil {
			p.mu.Lock()
			p.availSlots++
			p.mu.Unlock()
			return nil, false
		}
		return c, true
	}
	p.mu.Unlock()
	return nil, false
}

// Put returns a healthy connection to the pool, handing it directly to the
// oldest blocked waiter if one exists.
func (p *ClientPool) Put(c *Client) {
	if c == nil {
		return
	}
	c.touch()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		c.Quit()
		return
	}
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		ch <- waitResult{c: c}
		return
	}
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

// Discard closes a connection that failed a transport operation. If a
// waiter is queued, a replacement is dialed asynchronously and handed off
// to that waiter; otherwise the slot is simply released for the next Get.
func (p *ClientPool) Discard(c *Client) {
	if c != nil {
		c.Quit()
	}

	p.mu.Lock()
	if p.closed || len(p.waiters) == 0 {
		p.availSlots++
		p.mu.Unlock()
		return
	}
	ch := p.waiters[0]
	p.waiters = p.waiters[1:]
	p.beingReplaced++
	p.mu.Unlock()

	go func() {
		nc, err := p.dial()
		p.mu.Lock()
		p.beingReplaced--
		if err != nil {
			p.availSlots++
		}
		p.mu.Unlock()
		ch <- waitResult{c: nc, err: err}
	}()
}

// TrackRead updates the total bytes read
func (p *ClientPool) TrackRead(n int) {
	p.mu.Lock()
	p.bytesRead += int64(n)
	p.mu.Unlock()
}

// GetSpeed returns the current speed in Mbps and resets the counter.
// This should be called periodically (e.g. by the stats collector).
func (p *ClientPool) GetSpeed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	duration := now.Sub(p.lastCheck).Seconds()

	if duration >= 1.0 {
		mbps := (float64(p.bytesRead) * 8) / (1024 * 1024) / duration
		p.lastSpeed = mbps
		p.bytesRead = 0
		p.lastCheck = now
	}

	return p.lastSpeed
}

// NewInitializedClientPool creates 'count' connections immediately.
func NewInitializedClientPool(host string, port int, ssl bool, user, pass string, count int) (*ClientPool, error) {
	p := NewClientPool(host, port, ssl, user, pass, count)

	for i := 0; i < count; i++ {
		p.mu.Lock()
		if p.availSlots == 0 {
			p.mu.Unlock()
			break
		}
		p.availSlots--
		p.mu.Unlock()

		c, err := p.dial()
		if err != nil {
			p.mu.Lock()
			p.availSlots++
			p.mu.Unlock()
			return nil, err
		}
		p.Put(c)
	}
	return p, nil
}

const (
	keepAliveInterval = 20 * time.Second
	keepAliveAfter    = 15 * time.Second
)

// keepAliveLoop probes idle connections with STAT on a randomized bogus
// message-id so servers don't drop them for inactivity. A failed probe
// drops the connection and releases its slot; nothing waits for the
// replacement since no caller is blocked on it.
func (p *ClientPool) keepAliveLoop() {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		due := p.idle
		p.idle = nil
		p.mu.Unlock()

		for _, c := range due {
			if time.Since(c.LastUsed) < keepAliveAfter {
				p.Put(c)
				continue
			}
			if _, err := c.StatArticle(bogusMessageID()); err != nil {
				p.Discard(c)
				continue
			}
			c.touch()
			p.Put(c)
		}
	}
}

// bogusMessageID generates a message-id that is extremely unlikely to
// exist, so the keep-alive STAT always gets a definitive 223/430 reply
// rather than streaming a real article body.
func bogusMessageID() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf) + "@keepalive.invalid"
}

// Validate checks if the pool can successfully connect and authenticate.
func (p *ClientPool) Validate() error {
	c, err := p.Get()
	if err != nil {
		return err
	}
	p.Put(c)
	return nil
}

func (p *ClientPool) Host() string {
	return p.host
}

func (p *ClientPool) MaxConn() int {
	return p.maxConn
}

// TotalConnections returns the number of open connections (active + idle +
// being replaced).
func (p *ClientPool) TotalConnections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxConn - p.availSlots
}

// IdleConnections returns the number of idle connections ready for reuse.
func (p *ClientPool) IdleConnections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// ActiveConnections returns the number of connections continuously using
// bandwidth (checked out or being replaced).
func (p *ClientPool) ActiveConnections() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxConn - p.availSlots - len(p.idle)
}

// Shutdown closes all connections in the pool and wakes any blocked waiters
// with an error.
func (p *ClientPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, c := range idle {
		c.Quit()
	}
	for _, ch := range waiters {
		ch <- waitResult{err: errors.New("nntp: pool closed")}
	}
}
