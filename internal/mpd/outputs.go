package mpd

import (
	"errors"
	"io"
	"iter"
	"maps"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// rawOutput is one output record as parsed off the wire. Records are pooled;
// each one is owned by exactly one Output and returned to the pool by
// Output.Close.
type rawOutput struct {
	id         uint32
	name       string
	plugin     string
	enabled    bool
	attributes map[string]string

	hasName    bool
	hasEnabled bool
}

var rawOutputPool = sync.Pool{
	New: func() any { return new(rawOutput) },
}

// liveOutputs counts records handed out and not yet released. Only tests
// read it, to check that every path releases its records.
var liveOutputs atomic.Int64

func acquireRawOutput() *rawOutput {
	liveOutputs.Add(1)
	return rawOutputPool.Get().(*rawOutput)
}

func (r *rawOutput) release() {
	*r = rawOutput{}
	liveOutputs.Add(-1)
	rawOutputPool.Put(r)
}

func (r *rawOutput) complete() bool {
	return r.hasName && r.hasEnabled
}

// recvOutput reads the next output record of an "outputs" response. It
// returns nil both at the clean end of the response and on failure; the
// caller tells them apart with LastError.
func (c *Conn) recvOutput() *rawOutput {
	var p pair
	for {
		var ok bool
		if p, ok = c.recvPair(); !ok {
			return nil
		}
		if p.key == "outputid" {
			break
		}
	}

	id, err := strconv.ParseUint(p.value, 10, 32)
	if err != nil {
		c.fail(&ProtocolError{Line: p.key + ": " + p.value})
		return nil
	}

	raw := acquireRawOutput()
	raw.id = uint32(id)
	for {
		p, ok := c.recvPair()
		if !ok {
			break
		}
		switch p.key {
		case "outputid":
			c.enqueuePair(p)
			return raw
		case "outputname":
			raw.name = p.value
			raw.hasName = true
		case "outputenabled":
			raw.enabled = p.value == "1"
			raw.hasEnabled = true
		case "plugin":
			raw.plugin = p.value
		case "attribute":
			if raw.attributes == nil {
				raw.attributes = make(map[string]string)
			}
			k, v, _ := strings.Cut(p.value, "=")
			raw.attributes[k] = v
		}
	}

	// The response ended right after this record. Keep it if every field
	// arrived, even when the end was an error; the error surfaces on the
	// next pull.
	if c.lastErr != nil && !raw.complete() {
		raw.release()
		return nil
	}
	return raw
}

// Output is one audio output reported by the daemon. It borrows the Conn it
// was read from and must be closed to release its record.
type Output struct {
	conn *Conn
	raw  *rawOutput
}

// ID returns the output identifier used by the mutation commands
func (o *Output) ID() uint {
	if o.raw == nil {
		return 0
	}
	return uint(o.raw.id)
}

// Name returns the display name
func (o *Output) Name() string {
	if o.raw == nil {
		return ""
	}
	return o.raw.name
}

// Enabled reports the state at enumeration time. The mutators do not update it.
func (o *Output) Enabled() bool {
	if o.raw == nil {
		return false
	}
	return o.raw.enabled
}

// Plugin returns the output plugin name, empty for daemons older than 0.21
func (o *Output) Plugin() string {
	if o.raw == nil {
		return ""
	}
	return o.raw.plugin
}

// Attributes returns a copy of the runtime attributes of the output
func (o *Output) Attributes() map[string]string {
	if o.raw == nil || o.raw.attributes == nil {
		return nil
	}
	return maps.Clone(o.raw.attributes)
}

// SetEnabled enables or disables the output
func (o *Output) SetEnabled(enabled bool) error {
	if enabled {
		return o.run("enableoutput")
	}
	return o.run("disableoutput")
}

// Enable enables the output
func (o *Output) Enable() error {
	return o.SetEnabled(true)
}

// Disable disables the output
func (o *Output) Disable() error {
	return o.SetEnabled(false)
}

// Toggle flips the enabled state of the output
func (o *Output) Toggle() error {
	return o.run("toggleoutput")
}

func (o *Output) run(command string) error {
	if o.raw == nil {
		return &Error{Kind: RequestFailed, Op: command, Err: ErrReleased}
	}
	if err := o.conn.run(command, strconv.FormatUint(uint64(o.raw.id), 10)); err != nil {
		return &Error{Kind: RequestFailed, Op: command, Err: err}
	}
	return nil
}

// Close releases the output record. Only the first call has an effect.
func (o *Output) Close() error {
	if o.raw != nil {
		o.raw.release()
		o.raw = nil
	}
	return nil
}

// Outputs is a collected enumeration, in daemon order
type Outputs []*Output

// Close releases every output in the set
func (s Outputs) Close() error {
	for _, o := range s {
		o.Close()
	}
	return nil
}

// Find returns the output whose id or name equals key, or nil
func (s Outputs) Find(key string) *Output {
	if id, err := strconv.ParseUint(key, 10, 32); err == nil {
		for _, o := range s {
			if o.ID() == uint(id) {
				return o
			}
		}
	}
	for _, o := range s {
		if o.Name() == key {
			return o
		}
	}
	return nil
}

// OutputList streams the response of an "outputs" command.
//
// Records are pulled one at a time with Next. The list holds the connection's
// only response slot until it is exhausted or closed: Close must be called
// when a caller stops before the end, otherwise every later command on the
// connection fails with ErrResponsePending.
type OutputList struct {
	conn    *Conn
	seq     uint64 // response this list reads
	yielded int

	// ended is set once the response is over on the wire, with the error
	// that ended it. Later pulls never look at the connection again.
	ended  bool
	endErr error
	done   bool
}

// Outputs sends the "outputs" command and returns the streamed response
func (c *Conn) Outputs() (*OutputList, error) {
	if err := c.send("outputs"); err != nil {
		return nil, &Error{Kind: RequestFailed, Op: "outputs", Err: err}
	}
	return &OutputList{conn: c, seq: c.seq}, nil
}

// Next returns the next output. At the clean end of the response it returns
// io.EOF. If the response ends with an error, that error is returned once
// and io.EOF follows on every later call.
func (l *OutputList) Next() (*Output, error) {
	if l.done {
		return nil, io.EOF
	}

	// Another command can only have been sent after this response ended.
	if !l.ended && l.seq != l.conn.seq {
		l.ended = true
	}

	if !l.ended {
		if raw := l.conn.recvOutput(); raw != nil {
			l.yielded++
			if !l.conn.pending {
				l.ended, l.endErr = true, l.conn.lastErr
			}
			return &Output{conn: l.conn, raw: raw}, nil
		}
		l.ended, l.endErr = true, l.conn.lastErr
		if l.endErr == nil && l.conn.closed {
			l.endErr = ErrClosed
		}
	}

	l.done = true
	if l.endErr == nil {
		return nil, io.EOF
	}

	// A rejection before any record means the request itself failed.
	kind := StreamError
	var ack *AckError
	if l.yielded == 0 && errors.As(l.endErr, &ack) {
		kind = RequestFailed
	}
	return nil, &Error{Kind: kind, Op: "outputs", Err: l.endErr}
}

// All returns an iterator over the remaining outputs. Iteration stops after
// the first error. Breaking out early leaves unread records; call Close.
func (l *OutputList) All() iter.Seq2[*Output, error] {
	return func(yield func(*Output, error) bool) {
		for {
			o, err := l.Next()
			if err == io.EOF {
				return
			}
			if !yield(o, err) || err != nil {
				return
			}
		}
	}
}

// Close drains and releases the unread records so the connection can be
// reused. It returns a stream error met while draining; one already returned
// by Next is not reported again.
func (l *OutputList) Close() error {
	for !l.done {
		o, err := l.Next()
		if o != nil {
			o.Close()
		}
		if err != nil && err != io.EOF {
			return err
		}
	}
	return nil
}

// ListOutputs runs a whole enumeration and collects it. On error the outputs
// read so far are released.
func (c *Conn) ListOutputs() (Outputs, error) {
	l, err := c.Outputs()
	if err != nil {
		return nil, err
	}

	var outputs Outputs
	for o, err := range l.All() {
		if err != nil {
			outputs.Close()
			return nil, err
		}
		outputs = append(outputs, o)
	}
	return outputs, nil
}
