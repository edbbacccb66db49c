package tor

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/nao1215/dorkscan/internal/netclient"
)

// DefaultCheckTimeout bounds the SOCKS5 handshake performed by CheckConnection.
const DefaultCheckTimeout = 5 * time.Second

// SOCKS5 protocol constants.
const (
	socks5Version       = 0x05
	socks5AuthNone      = 0x00
	socks5AuthNoAccept  = 0xFF
	socks5CmdConnect    = 0x01
	socks5AddrTypeDomID = 0x03

	// checkHost is the destination of the CONNECT check. Any reply code
	// counts as success; only the framing is checked.
	checkHost = "check.torproject.org"
	checkPort = 443
)

// Client describes a Tor SOCKS5 endpoint.
type Client struct {
	host         string
	port         int
	checkTimeout time.Duration
}

// NewClient validates a "host:port" address and returns a Client for it.
// It does not contact the proxy; call CheckConnection for that.
func NewClient(address string, checkTimeout time.Duration) (*Client, error) {
	host, port, ok := splitProxyAddress(address)
	if !ok {
		return nil, ErrInvalidProxyAddress
	}
	if checkTimeout <= 0 {
		checkTimeout = DefaultCheckTimeout
	}
	return &Client{host: host, port: port, checkTimeout: checkTimeout}, nil
}

// NewClientFromHostPort is NewClient for separately configured host and port.
func NewClientFromHostPort(host string, port int, checkTimeout time.Duration) (*Client, error) {
	return NewClient(net.JoinHostPort(host, strconv.Itoa(port)), checkTimeout)
}

// splitProxyAddress checks that address is host:port with a port in 1-65535.
func splitProxyAddress(address string) (string, int, bool) {
	host, portStr, err := net.SplitHostPort(address)
	if err != nil || host == "" || portStr == "" {
		return "", 0, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, false
	}
	return host, port, true
}

// Address returns the proxy address in host:port form.
func (c *Client) Address() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// ProxyURL returns the socks5h URL to hand to netclient.WithProxy.
func (c *Client) ProxyURL() string {
	return netclient.SOCKSURL(c.host, c.port)
}

// CheckConnection performs a SOCKS5 greeting and a CONNECT request against
// the proxy and reports whether it behaves like a SOCKS5 proxy.
func (c *Client) CheckConnection(ctx context.Context) ProxyStatus {
	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Address())
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ProxyStatusTimeout
		}
		return ProxyStatusCannotConnect
	}
	defer conn.Close()

	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		return ProxyStatusCannotConnect
	}

	// Greeting: version, one method, no authentication.
	if _, err := conn.Write([]byte{socks5Version, 0x01, socks5AuthNone}); err != nil {
		return ProxyStatusCannotConnect
	}

	authResp := make([]byte, 2)
	if _, err := io.ReadFull(conn, authResp); err != nil {
		return readFailure(err)
	}
	if authResp[0] != socks5Version || authResp[1] == socks5AuthNoAccept || authResp[1] != socks5AuthNone {
		return ProxyStatusWrongType
	}

	connectReq := []byte{
		socks5Version,
		socks5CmdConnect,
		0x00,
		socks5AddrTypeDomID,
		byte(len(checkHost)),
	}
	connectReq = append(connectReq, checkHost...)
	connectReq = append(connectReq, byte(checkPort>>8), byte(checkPort&0xFF))

	if _, err := conn.Write(connectReq); err != nil {
		return ProxyStatusCannotConnect
	}

	connectResp := make([]byte, 4)
	if _, err := io.ReadFull(conn, connectResp); err != nil {
		return readFailure(err)
	}
	if connectResp[0] != socks5Version {
		return ProxyStatusWrongType
	}

	return ProxyStatusOK
}

func readFailure(err error) ProxyStatus {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return ProxyStatusTimeout
	}
	return ProxyStatusWrongType
}

// Check runs CheckConnection and converts a failing status into an error.
func (c *Client) Check(ctx context.Context) error {
	return c.CheckConnection(ctx).Err()
}
