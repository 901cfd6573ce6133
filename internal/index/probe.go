package index

import (
	"context"
	"net"
	"sync"
	"time"
)

// Prober checks once whether an external address is reachable. The answer is
// cached for the life of the Prober; connectivity is not expected to flap
// within a single run.
type Prober struct {
	Address string
	Timeout time.Duration

	// Dial defaults to a net.Dialer with Timeout.
	Dial func(ctx context.Context, network, address string) (net.Conn, error)

	once      sync.Once
	reachable bool
}

// Reachable reports whether a TCP connection to Address succeeds within
// Timeout.
func (p *Prober) Reachable(ctx context.Context) bool {
	p.once.Do(func() {
		dial := p.Dial
		if dial == nil {
			d := &net.Dialer{Timeout: p.Timeout}
			dial = d.DialContext
		}
		ctx, cancel := context.WithTimeout(ctx, p.Timeout)
		defer cancel()
		conn, err := dial(ctx, "tcp", p.Address)
		if err != nil {
			return
		}
		conn.Close()
		p.reachable = true
	})
	return p.reachable
}
