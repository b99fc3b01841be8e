package mpd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrClosed is returned by every command issued on a connection that was
	// closed, either explicitly or because the transport broke.
	ErrClosed = errors.New("mpd: connection closed")

	// ErrResponsePending is returned when a command is issued while a previous
	// response has not been fully read. It signals a programming error: the
	// protocol allows one response in flight per connection.
	ErrResponsePending = errors.New("mpd: previous response still pending")

	// ErrReleased is returned by mutators called on an output after Close.
	ErrReleased = errors.New("mpd: output already released")
)

// AckCode is the numeric error class of an ACK response
type AckCode int

const (
	AckNotList       AckCode = 1
	AckArg           AckCode = 2
	AckPassword      AckCode = 3
	AckPermission    AckCode = 4
	AckUnknown       AckCode = 5
	AckNoExist       AckCode = 50
	AckPlaylistMax   AckCode = 51
	AckSystem        AckCode = 52
	AckPlaylistLoad  AckCode = 53
	AckUpdateAlready AckCode = 54
	AckPlayerSync    AckCode = 55
	AckExist         AckCode = 56
)

// AckError is a failure reported by the daemon:
//
//	ACK [50@0] {enableoutput} No such audio output
type AckError struct {
	Code    AckCode
	Index   int // position of the failing command inside a command list
	Command string
	Message string
}

func (e *AckError) Error() string {
	return fmt.Sprintf("mpd: ACK [%d@%d] {%s} %s", e.Code, e.Index, e.Command, e.Message)
}

// ArgumentError reports a command argument the protocol cannot carry. Line
// breaks would end the command early and desync every later response.
type ArgumentError struct {
	Command string
	Arg     string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("mpd: %s: argument %q contains a line break", e.Command, e.Arg)
}

// ProtocolError reports a response line the client could not make sense of.
type ProtocolError struct {
	Line string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("mpd: malformed response line %q", e.Line)
}

// parseAck parses the remainder of an ACK line (everything after "ACK ").
func parseAck(rest string) (*AckError, error) {
	if !strings.HasPrefix(rest, "[") {
		return nil, &ProtocolError{Line: "ACK " + rest}
	}
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return nil, &ProtocolError{Line: "ACK " + rest}
	}
	codeStr, idxStr, ok := strings.Cut(rest[1:end], "@")
	if !ok {
		return nil, &ProtocolError{Line: "ACK " + rest}
	}
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return nil, &ProtocolError{Line: "ACK " + rest}
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return nil, &ProtocolError{Line: "ACK " + rest}
	}

	ack := &AckError{Code: AckCode(code), Index: idx}
	rest = strings.TrimPrefix(rest[end+1:], " ")
	if strings.HasPrefix(rest, "{") {
		if brace := strings.IndexByte(rest, '}'); brace >= 0 {
			ack.Command = rest[1:brace]
			rest = strings.TrimPrefix(rest[brace+1:], " ")
		}
	}
	ack.Message = rest
	return ack, nil
}

// ErrorKind classifies failures surfaced by the outputs API.
type ErrorKind int

const (
	// RequestFailed means a command could not be sent or the daemon rejected it.
	RequestFailed ErrorKind = iota + 1
	// StreamError means a streamed response ended abnormally.
	StreamError
)

func (k ErrorKind) String() string {
	switch k {
	case RequestFailed:
		return "request failed"
	case StreamError:
		return "stream error"
	default:
		return "unknown"
	}
}

// Error is the typed failure returned by the outputs API. Err carries the
// connection's last error and is reachable through errors.Is and errors.As.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("mpd: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// errFromConn builds a typed error from the connection's last error. A nil
// last error means the command failed without the connection noticing, which
// is reported as a protocol error rather than dropped.
func (c *Conn) errFromConn(kind ErrorKind, op string) *Error {
	err := c.LastError()
	if err == nil {
		err = &ProtocolError{Line: ""}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
