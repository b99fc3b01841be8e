package mpd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// exchange is one step of a scripted daemon: the command line the client must
// send and the raw reply written back.
type exchange struct {
	expect string
	reply  string
	hangup bool // close the connection right after the reply
}

// scriptedConn returns a Conn talking to a daemon that plays exchanges in
// order over an in-memory pipe.
func scriptedConn(t *testing.T, exchanges ...exchange) *Conn {
	t.Helper()
	return scriptedConnWith(t, "OK MPD 0.23.5\n", nil, exchanges...)
}

func scriptedConnWith(t *testing.T, greeting string, opts []Option, exchanges ...exchange) *Conn {
	t.Helper()

	client, server := net.Pipe()
	errc := make(chan error, 1)
	go func() {
		errc <- playScript(server, greeting, exchanges)
	}()

	c, err := NewConn(client, opts...)
	if err != nil {
		<-errc
		t.Fatalf("NewConn() error = %v", err)
	}
	t.Cleanup(func() {
		c.Close()
		if err := <-errc; err != nil {
			t.Errorf("daemon script: %v", err)
		}
	})
	return c
}

func playScript(conn net.Conn, greeting string, exchanges []exchange) error {
	defer conn.Close()

	if _, err := io.WriteString(conn, greeting); err != nil {
		return fmt.Errorf("writing greeting: %w", err)
	}

	rd := bufio.NewReader(conn)
	for _, ex := range exchanges {
		line, err := rd.ReadString('\n')
		if err != nil {
			return fmt.Errorf("waiting for %q: %w", ex.expect, err)
		}
		if got := strings.TrimSuffix(line, "\n"); got != ex.expect {
			return fmt.Errorf("got command %q, want %q", got, ex.expect)
		}
		if ex.reply != "" {
			if _, err := io.WriteString(conn, ex.reply); err != nil {
				return fmt.Errorf("replying to %q: %w", ex.expect, err)
			}
		}
		if ex.hangup {
			return nil
		}
	}
	return nil
}

func TestNewConnReadsGreeting(t *testing.T) {
	c := scriptedConn(t)
	if got := c.Version(); got != "0.23.5" {
		t.Errorf("Version() = %q, want %q", got, "0.23.5")
	}
	if err := c.LastError(); err != nil {
		t.Errorf("LastError() = %v, want nil", err)
	}
}

func TestNewConnRejectsBadGreeting(t *testing.T) {
	client, server := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		io.WriteString(server, "HELLO\n")
		server.Close()
	}()

	_, err := NewConn(client)
	<-done

	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("NewConn() error = %v, want *ProtocolError", err)
	}
	if perr.Line != "HELLO" {
		t.Errorf("ProtocolError.Line = %q, want %q", perr.Line, "HELLO")
	}
}

func TestNewConnSendsPassword(t *testing.T) {
	c := scriptedConnWith(t, "OK MPD 0.23.5\n", []Option{WithPassword(`se"cret`)},
		exchange{expect: `password "se\"cret"`, reply: "OK\n"},
		exchange{expect: "ping", reply: "OK\n"},
	)
	if err := c.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestPingAck(t *testing.T) {
	c := scriptedConn(t,
		exchange{expect: "ping", reply: "ACK [4@0] {ping} you don't have permission for \"ping\"\n"},
		exchange{expect: "ping", reply: "OK\n"},
	)

	err := c.Ping()
	var ack *AckError
	if !errors.As(err, &ack) {
		t.Fatalf("Ping() error = %v, want *AckError", err)
	}
	if ack.Code != AckPermission || ack.Command != "ping" {
		t.Errorf("AckError = %+v", ack)
	}

	// an ACK ends the response but keeps the connection usable
	if err := c.Ping(); err != nil {
		t.Fatalf("second Ping() error = %v", err)
	}
	if err := c.LastError(); err != nil {
		t.Errorf("LastError() after success = %v, want nil", err)
	}
}

func TestBrokenConnectionRejectsCommands(t *testing.T) {
	c := scriptedConn(t,
		exchange{expect: "ping", reply: "", hangup: true},
	)

	err := c.Ping()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("Ping() error = %v, want io.ErrUnexpectedEOF", err)
	}

	if err := c.Ping(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Ping() on broken connection error = %v, want ErrClosed", err)
	}
	if _, err := c.Outputs(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Outputs() on broken connection error = %v, want ErrClosed", err)
	}
}

func TestMalformedLineBreaksConnection(t *testing.T) {
	c := scriptedConn(t,
		exchange{expect: "ping", reply: "garbage\n"},
	)

	var perr *ProtocolError
	if err := c.Ping(); !errors.As(err, &perr) {
		t.Fatalf("Ping() error = %v, want *ProtocolError", err)
	}
	if err := c.Ping(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Ping() after malformed line error = %v, want ErrClosed", err)
	}
}

func TestIdle(t *testing.T) {
	c := scriptedConn(t,
		exchange{expect: `idle "output" "mixer"`, reply: "changed: output\nchanged: mixer\nOK\n"},
	)

	changed, err := c.Idle(SubsystemOutput, SubsystemMixer)
	if err != nil {
		t.Fatalf("Idle() error = %v", err)
	}
	if len(changed) != 2 || changed[0] != SubsystemOutput || changed[1] != SubsystemMixer {
		t.Errorf("Idle() = %v, want [output mixer]", changed)
	}
}

func TestIdleContextCancel(t *testing.T) {
	client, server := net.Pipe()
	received := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer server.Close()
		io.WriteString(server, "OK MPD 0.23.5\n")
		rd := bufio.NewReader(server)
		if line, _ := rd.ReadString('\n'); line != "idle \"output\"\n" {
			t.Errorf("got command %q", line)
		}
		close(received)
		// hold the idle open until the client goes away
		rd.ReadString('\n')
	}()

	c, err := NewConn(client)
	if err != nil {
		t.Fatalf("NewConn() error = %v", err)
	}
	defer func() {
		c.Close()
		<-done
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-received
		cancel()
	}()

	if _, err := c.IdleContext(ctx, SubsystemOutput); !errors.Is(err, context.Canceled) {
		t.Fatalf("IdleContext() error = %v, want context.Canceled", err)
	}
	if err := c.Ping(); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping() after cancelled idle error = %v, want ErrClosed", err)
	}
}

func TestIdleContextAlreadyCancelled(t *testing.T) {
	c := scriptedConn(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.IdleContext(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("IdleContext() error = %v, want context.Canceled", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	c := scriptedConn(t)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if err := c.Ping(); !errors.Is(err, ErrClosed) {
		t.Fatalf("Ping() after Close error = %v, want ErrClosed", err)
	}
}

func TestQuoteArg(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2", `"2"`},
		{"", `""`},
		{"Living Room", `"Living Room"`},
		{`say "hi"`, `"say \"hi\""`},
		{`C:\music`, `"C:\\music"`},
	}

	for _, tt := range tests {
		if got := quoteArg(tt.in); got != tt.want {
			t.Errorf("quoteArg(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestSendRejectsLineBreaks(t *testing.T) {
	c := scriptedConn(t,
		exchange{expect: "ping", reply: "OK\n"},
	)

	tests := []struct {
		name string
		call func() error
	}{
		{name: "password", call: func() error { return c.Password("x\nping") }},
		{name: "trailing newline", call: func() error { return c.Password("secret\n") }},
		{name: "idle", call: func() error { _, err := c.Idle("output\nplayer"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var argErr *ArgumentError
			if err := tt.call(); !errors.As(err, &argErr) {
				t.Fatalf("error = %v, want *ArgumentError", err)
			}
			if err := c.LastError(); err != nil {
				t.Errorf("LastError() = %v, want nil", err)
			}
		})
	}

	// nothing reached the daemon, so the next reply still matches
	if err := c.Ping(); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}

func TestParseAck(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    AckError
		wantErr bool
	}{
		{
			name: "no such output",
			in:   "[50@0] {enableoutput} No such audio output",
			want: AckError{Code: AckNoExist, Index: 0, Command: "enableoutput", Message: "No such audio output"},
		},
		{
			name: "command list index",
			in:   "[5@3] {frobnicate} unknown command \"frobnicate\"",
			want: AckError{Code: AckUnknown, Index: 3, Command: "frobnicate", Message: `unknown command "frobnicate"`},
		},
		{
			name: "empty command",
			in:   "[2@0] {} wrong number of arguments",
			want: AckError{Code: AckArg, Command: "", Message: "wrong number of arguments"},
		},
		{name: "missing bracket", in: "50@0 {x} y", wantErr: true},
		{name: "missing at", in: "[50] {x} y", wantErr: true},
		{name: "bad code", in: "[x@0] {x} y", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAck(tt.in)
			if tt.wantErr {
				var perr *ProtocolError
				if !errors.As(err, &perr) {
					t.Fatalf("parseAck() error = %v, want *ProtocolError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAck() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("parseAck() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	ack := &AckError{Code: AckNoExist, Command: "toggleoutput", Message: "No such audio output"}
	err := error(&Error{Kind: RequestFailed, Op: "toggleoutput", Err: ack})

	var got *AckError
	if !errors.As(err, &got) || got != ack {
		t.Fatalf("errors.As() did not reach the AckError")
	}
	want := "mpd: toggleoutput: request failed: mpd: ACK [50@0] {toggleoutput} No such audio output"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
