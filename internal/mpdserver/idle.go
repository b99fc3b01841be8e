package mpdserver

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// clientSession is the per-connection state the router needs
type clientSession struct {
	authorized bool

	mu      sync.Mutex
	pending map[string]bool // subsystems changed since the last idle report
	wake    chan struct{}
}

func newClientSession(authorized bool) *clientSession {
	return &clientSession{
		authorized: authorized,
		pending:    make(map[string]bool),
		wake:       make(chan struct{}, 1),
	}
}

// post marks a subsystem as changed and wakes an idle wait
func (c *clientSession) post(subsystem string) {
	c.mu.Lock()
	c.pending[subsystem] = true
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// take removes and returns the pending subsystems matching filter (all of
// them when filter is empty), sorted.
func (c *clientSession) take(filter map[string]bool) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var changed []string
	for subsystem := range c.pending {
		if len(filter) == 0 || filter[subsystem] {
			changed = append(changed, subsystem)
			delete(c.pending, subsystem)
		}
	}
	sort.Strings(changed)
	return changed
}

// registerSession registers a connection to receive notifications
func (s *Server) registerSession(sess *clientSession) {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	s.sessions[sess] = true
	s.logger.Debug("registered session", "total", len(s.sessions))
}

// unregisterSession removes a connection from notifications
func (s *Server) unregisterSession(sess *clientSession) {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	delete(s.sessions, sess)
	s.logger.Debug("unregistered session", "total", len(s.sessions))
}

// NotifySubsystemChange notifies all connections about a subsystem change.
// Connections not currently idle get the event on their next idle.
func (s *Server) NotifySubsystemChange(subsystem string) {
	s.idleMu.RLock()
	defer s.idleMu.RUnlock()

	s.logger.Debug("notifying sessions", "sessions", len(s.sessions), "subsystem", subsystem)

	for sess := range s.sessions {
		sess.post(subsystem)
	}
}

// waitIdle blocks until a watched subsystem changes or the client sends
// noidle. It returns false when the connection must be closed: the client
// went away, the server is stopping, or a command other than noidle arrived.
func (s *Server) waitIdle(sess *clientSession, args []string, lines <-chan string) (string, bool) {
	filter := make(map[string]bool)
	for _, arg := range args {
		filter[strings.ToLower(arg)] = true
	}

	for {
		if changed := sess.take(filter); len(changed) > 0 {
			var response strings.Builder
			for _, subsystem := range changed {
				fmt.Fprintf(&response, "changed: %s\n", subsystem)
			}
			response.WriteString("OK\n")
			return response.String(), true
		}

		select {
		case <-sess.wake:
		case line, ok := <-lines:
			if !ok {
				return "", false
			}
			if line == "noidle" {
				return "OK\n", true
			}
			s.logger.Warn("command received while idle, closing connection", "command", line)
			return "", false
		case <-s.done:
			return "", false
		}
	}
}
