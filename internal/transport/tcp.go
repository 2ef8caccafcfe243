package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/joestump/dapclient/internal/dap"
)

// TCPTransport dials a TCP-connected adapter and frames DAP messages over
// the connection. Some adapters are fronted by a server the tool spawns
// itself, printing a banner like "Debug server listening at 127.0.0.1:9229"
// on stdout; WaitForListenAddress extracts (host, port) from that banner
// via a caller-supplied regex with named "host" and "port" groups.
type TCPTransport struct {
	base baseTransport
	conn net.Conn
}

// DialTCP connects to addr ("host:port"), giving up when ctx is done, and
// returns a Transport ready for Start.
func DialTCP(ctx context.Context, addr string) (*TCPTransport, error) {
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	t := &TCPTransport{conn: conn}
	t.base.framer = dap.NewFramer(conn, conn)
	t.base.closeFn = conn.Close
	return t, nil
}

func (t *TCPTransport) Start(onMessage OnMessage, onClose OnClose) error {
	t.base.pump(onMessage, onClose)
	return nil
}

func (t *TCPTransport) Send(raw []byte) error { return t.base.send(raw) }
func (t *TCPTransport) Close() error          { return t.base.close() }

// WaitForListenAddress scans r line-by-line until listenRegex matches a
// line and both its "host" and "port" named capture groups are non-empty,
// returning "host:port". It stops scanning as soon as a match is found;
// the caller is expected to keep draining r (or close it) afterward since
// the process will keep writing to stdout. Returns an error if ctx is
// cancelled or r reaches EOF without a match.
func WaitForListenAddress(ctx context.Context, r *bufio.Scanner, listenRegex *regexp.Regexp) (string, error) {
	hostIdx := listenRegex.SubexpIndex("host")
	portIdx := listenRegex.SubexpIndex("port")
	if hostIdx < 0 || portIdx < 0 {
		return "", fmt.Errorf("transport: listenRegex must have named groups \"host\" and \"port\"")
	}

	type scanResult struct {
		addr string
		err  error
	}
	resultCh := make(chan scanResult, 1)

	go func() {
		for r.Scan() {
			line := r.Text()
			m := listenRegex.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			host, port := m[hostIdx], m[portIdx]
			if host == "" || port == "" {
				continue
			}
			resultCh <- scanResult{addr: net.JoinHostPort(host, port)}
			return
		}
		resultCh <- scanResult{err: fmt.Errorf("transport: adapter stdout closed before announcing a listen address")}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		return res.addr, res.err
	case <-time.After(30 * time.Second):
		return "", fmt.Errorf("transport: timed out waiting for adapter listen-address banner")
	}
}
