// Package mpd implements the client side of the MPD line protocol, focused on
// the audio outputs command family.
package mpd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
)

// pair is one "key: value" line of a response
type pair struct {
	key   string
	value string
}

// Conn is a client connection to an MPD daemon.
//
// The protocol allows a single response in flight: after a command is sent,
// its response must be read to the end before the next command. Conn tracks
// this and fails with ErrResponsePending instead of interleaving. A Conn is
// not safe for concurrent use.
type Conn struct {
	nc       net.Conn
	rd       *bufio.Reader
	version  string
	timeout  time.Duration
	password string
	logger   *slog.Logger

	command  string // command whose response is being read
	seq      uint64 // bumped by every command sent
	pending  bool
	pushback *pair
	lastErr  error
	closed   bool
	idling   bool
}

// Option configures a Conn
type Option func(*Conn)

// WithTimeout sets the deadline applied to every read and write.
// Zero disables deadlines.
func WithTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.timeout = d
	}
}

// WithLogger sets the logger used for protocol tracing
func WithLogger(logger *slog.Logger) Option {
	return func(c *Conn) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPassword authenticates right after the greeting
func WithPassword(password string) Option {
	return func(c *Conn) {
		c.password = password
	}
}

// Dial connects to the daemon at addr. An absolute path or an address starting
// with '@' is dialed as a unix socket, anything else as host:port over TCP.
func Dial(ctx context.Context, addr string, opts ...Option) (*Conn, error) {
	network := "tcp"
	if strings.HasPrefix(addr, "/") || strings.HasPrefix(addr, "@") {
		network = "unix"
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	return NewConn(nc, opts...)
}

// NewConn wraps an established connection and reads the daemon greeting.
// nc is closed if the handshake fails.
func NewConn(nc net.Conn, opts ...Option) (*Conn, error) {
	c := &Conn{
		nc:     nc,
		rd:     bufio.NewReader(nc),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}

	line, err := c.readLine()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to read greeting: %w", err)
	}
	version, ok := strings.CutPrefix(line, "OK MPD ")
	if !ok {
		nc.Close()
		return nil, &ProtocolError{Line: line}
	}
	c.version = version
	c.logger.Debug("connected to daemon", "remote", nc.RemoteAddr().String(), "version", version)

	if c.password != "" {
		if err := c.Password(c.password); err != nil {
			c.Close()
			return nil, err
		}
	}

	return c, nil
}

// Version returns the protocol version announced in the greeting
func (c *Conn) Version() string {
	return c.version
}

// LastError returns the error recorded by the most recent command, or nil.
// It is reset each time a command is sent.
func (c *Conn) LastError() error {
	return c.lastErr
}

// Close closes the connection. Closing an already closed or broken
// connection is a no-op.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.pending = false
	c.pushback = nil
	return c.nc.Close()
}

// Ping sends a no-op command
func (c *Conn) Ping() error {
	if err := c.run("ping"); err != nil {
		return &Error{Kind: RequestFailed, Op: "ping", Err: err}
	}
	return nil
}

// Password authenticates the session
func (c *Conn) Password(password string) error {
	if err := c.run("password", password); err != nil {
		return &Error{Kind: RequestFailed, Op: "password", Err: err}
	}
	return nil
}

// send writes one command line. Contract violations (closed connection,
// pending response, an argument that would split the line) are returned
// without touching the stream or the last error; transport failures break
// the connection.
func (c *Conn) send(command string, args ...string) error {
	if c.closed {
		return ErrClosed
	}
	if c.pending {
		return ErrResponsePending
	}
	for _, arg := range args {
		if strings.Contains(arg, "\n") {
			return &ArgumentError{Command: command, Arg: arg}
		}
	}
	c.lastErr = nil

	var b strings.Builder
	b.WriteString(command)
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(quoteArg(arg))
	}
	b.WriteByte('\n')

	if c.timeout > 0 {
		c.nc.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	if _, err := io.WriteString(c.nc, b.String()); err != nil {
		c.fail(fmt.Errorf("failed to send %s: %w", command, err))
		return c.lastErr
	}

	c.command = command
	c.seq++
	c.pending = true
	if command == "password" {
		c.logger.Debug("sent command", "command", command)
	} else {
		c.logger.Debug("sent command", "command", command, "args", args)
	}
	return nil
}

// recvPair returns the next pair of the current response. It returns false at
// the end of the response; LastError then tells a clean OK apart from an ACK
// or a broken transport.
func (c *Conn) recvPair() (pair, bool) {
	if c.pushback != nil {
		p := *c.pushback
		c.pushback = nil
		return p, true
	}
	if !c.pending {
		return pair{}, false
	}

	line, err := c.readLine()
	if err != nil {
		c.fail(fmt.Errorf("failed to read %s response: %w", c.command, err))
		return pair{}, false
	}

	if line == "OK" {
		c.pending = false
		c.logger.Debug("response complete", "command", c.command)
		return pair{}, false
	}

	if rest, ok := strings.CutPrefix(line, "ACK "); ok {
		ack, err := parseAck(rest)
		if err != nil {
			c.fail(err)
			return pair{}, false
		}
		c.pending = false
		c.lastErr = ack
		c.logger.Debug("command rejected", "command", c.command, "code", int(ack.Code), "message", ack.Message)
		return pair{}, false
	}

	key, value, ok := strings.Cut(line, ": ")
	if !ok {
		c.fail(&ProtocolError{Line: line})
		return pair{}, false
	}
	return pair{key: key, value: value}, true
}

// enqueuePair pushes p back so the next recvPair returns it again
func (c *Conn) enqueuePair(p pair) {
	c.pushback = &p
}

// finish discards the rest of the current response
func (c *Conn) finish() error {
	for {
		if _, ok := c.recvPair(); !ok {
			break
		}
	}
	return c.lastErr
}

// run sends a command and waits for its OK
func (c *Conn) run(command string, args ...string) error {
	if err := c.send(command, args...); err != nil {
		return err
	}
	return c.finish()
}

// fail records err and breaks the connection: once the stream is out of sync
// nothing read from it can be trusted.
func (c *Conn) fail(err error) {
	c.lastErr = err
	c.logger.Warn("connection broken", "command", c.command, "error", err)
	c.Close()
}

func (c *Conn) readLine() (string, error) {
	// Idle manages its own deadline
	if !c.idling && c.timeout > 0 {
		c.nc.SetReadDeadline(time.Now().Add(c.timeout))
	}

	line, err := c.rd.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}

// quoteArg double-quotes an argument, escaping backslashes and quotes
func quoteArg(arg string) string {
	var b strings.Builder
	b.Grow(len(arg) + 2)
	b.WriteByte('"')
	for i := 0; i < len(arg); i++ {
		if arg[i] == '"' || arg[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(arg[i])
	}
	b.WriteByte('"')
	return b.String()
}
