package realtime

import (
	"io"
	"net"
	"strings"
	"sync"
	"testing"
)

// stallProxy forwards TCP traffic to a backend. stall makes every current
// connection silently discard traffic in both directions while both sockets
// stay open, as a dead NAT entry or proxy would. Later connections forward
// normally.
type stallProxy struct {
	listener net.Listener
	backend  string

	mu      sync.Mutex
	links   []*proxyLink
	stopped bool
}

type proxyLink struct {
	mu      sync.Mutex
	stalled bool
	conns   [2]net.Conn
}

func (l *proxyLink) isStalled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stalled
}

func newStallProxy(t *testing.T, backendURL string) *stallProxy {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	p := &stallProxy{listener: ln, backend: strings.TrimPrefix(backendURL, "http://")}
	go p.accept()
	t.Cleanup(p.close)
	return p
}

func (p *stallProxy) URL() string { return "http://" + p.listener.Addr().String() }

func (p *stallProxy) accept() {
	for {
		client, err := p.listener.Accept()
		if err != nil {
			return
		}
		upstream, err := net.Dial("tcp", p.backend)
		if err != nil {
			client.Close()
			continue
		}
		link := &proxyLink{conns: [2]net.Conn{client, upstream}}
		p.mu.Lock()
		if p.stopped {
			p.mu.Unlock()
			client.Close()
			upstream.Close()
			return
		}
		p.links = append(p.links, link)
		p.mu.Unlock()

		go pipe(link, upstream, client)
		go pipe(link, client, upstream)
	}
}

func pipe(link *proxyLink, dst, src net.Conn) {
	buf := make([]byte, 32<<10)
	for {
		n, err := src.Read(buf)
		if n > 0 && !link.isStalled() {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				return
			}
			if !link.isStalled() {
				dst.Close()
			}
			return
		}
	}
}

func (p *stallProxy) stall() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, l := range p.links {
		l.mu.Lock()
		l.stalled = true
		l.mu.Unlock()
	}
}

func (p *stallProxy) close() {
	p.mu.Lock()
	p.stopped = true
	links := p.links
	p.mu.Unlock()
	p.listener.Close()
	for _, l := range links {
		l.conns[0].Close()
		l.conns[1].Close()
	}
}
