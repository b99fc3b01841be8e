package mpd

import (
	"context"
	"time"
)

// Subsystem is an idle event category
type Subsystem string

const (
	// an audio output has been added, removed or modified (renamed, enabled or disabled)
	SubsystemOutput Subsystem = "output"

	// the player has been started, stopped or seeked
	SubsystemPlayer Subsystem = "player"

	// the volume has been changed
	SubsystemMixer Subsystem = "mixer"

	// options like repeat, random, crossfade, replay gain
	SubsystemOptions Subsystem = "options"

	// the queue has been modified
	SubsystemPlaylist Subsystem = "playlist"

	// a partition was added, removed or changed
	SubsystemPartition Subsystem = "partition"
)

// Idle blocks until one of the given subsystems changes (any subsystem when
// none are given) and returns the changed ones. The connection timeout does
// not apply while waiting.
func (c *Conn) Idle(subsystems ...Subsystem) ([]Subsystem, error) {
	return c.IdleContext(context.Background(), subsystems...)
}

// IdleContext is Idle with cancellation. Cancelling ctx while waiting breaks
// the connection, since the daemon's answer to the pending idle can no longer
// be read in order.
func (c *Conn) IdleContext(ctx context.Context, subsystems ...Subsystem) ([]Subsystem, error) {
	args := make([]string, 0, len(subsystems))
	for _, s := range subsystems {
		args = append(args, string(s))
	}

	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: RequestFailed, Op: "idle", Err: err}
	}
	if err := c.send("idle", args...); err != nil {
		return nil, &Error{Kind: RequestFailed, Op: "idle", Err: err}
	}

	c.idling = true
	defer func() { c.idling = false }()

	c.nc.SetReadDeadline(time.Time{})
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		c.nc.SetReadDeadline(time.Now())
		close(fired)
	})
	defer func() {
		// a cancellation racing a normal return must not poison the next read
		if !stop() {
			<-fired
			c.nc.SetReadDeadline(time.Time{})
		}
	}()

	var changed []Subsystem
	for {
		p, ok := c.recvPair()
		if !ok {
			break
		}
		if p.key == "changed" {
			changed = append(changed, Subsystem(p.value))
		}
	}
	if c.LastError() != nil {
		if err := ctx.Err(); err != nil {
			return nil, &Error{Kind: RequestFailed, Op: "idle", Err: err}
		}
		return nil, c.errFromConn(RequestFailed, "idle")
	}
	return changed, nil
}
