package nntp

import (
	"net"
	"net/textproto"
)

// SetDialFuncForTest overrides a pool's dial seam so tests can hand back
// connections wired to an in-process fake server instead of dialing the
// network.
func SetDialFuncForTest(p *ClientPool, f func() (*Client, error)) {
	p.dialFunc = f
}

// NewClientFromConnForTest wraps an already-established connection as a
// Client after reading its greeting line, for tests driving a fake NNTP
// responder over net.Pipe.
func NewClientFromConnForTest(conn net.Conn) (*Client, error) {
	tp := textproto.NewConn(conn)
	if _, _, err := tp.ReadResponse(200); err != nil {
		tp.Close()
		return nil, err
	}
	return &Client{conn: tp, netConn: conn}, nil
}
