package mpdserver

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
)

// handleConnection handles a single MPD client connection
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)

	logger := s.logger.With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())
	logger.Info("client connected")
	defer logger.Info("client disconnected")

	s.metrics.ConnectedClients.Inc()
	defer s.metrics.ConnectedClients.Dec()

	// Register before the greeting so changes made after the client sees it
	// are reported on its first idle.
	sess := newClientSession(s.password == "")
	s.registerSession(sess)
	defer s.unregisterSession(sess)

	if _, err := fmt.Fprintf(conn, "OK MPD %s\n", ProtocolVersion); err != nil {
		return
	}

	quit := make(chan struct{})
	defer close(quit)
	lines := make(chan string)
	s.wg.Add(1)
	go s.readLines(conn, lines, quit)

	inCommandList := false
	commandListOk := false // Track if we need list_OK after each command
	commandListIndex := 0
	commandListFailed := false
	var commandListResponses strings.Builder

	for line := range lines {
		logger.Debug("MPD command", "line", redact(line))

		// Handle command list mode
		if line == "command_list_begin" || line == "command_list_ok_begin" {
			inCommandList = true
			commandListOk = line == "command_list_ok_begin"
			commandListIndex = 0
			commandListFailed = false
			commandListResponses.Reset()
			continue
		}

		if line == "command_list_end" {
			if inCommandList {
				// Send all buffered responses; a failed list ends with its ACK
				fmt.Fprint(conn, commandListResponses.String())
				if !commandListFailed {
					fmt.Fprint(conn, "OK\n")
				}
				inCommandList = false
				commandListOk = false
				commandListResponses.Reset()
			}
			continue
		}

		if inCommandList {
			if commandListFailed {
				continue
			}
			response := s.handleCommand(sess, line)
			if strings.HasPrefix(response, "ACK ") {
				commandListResponses.WriteString(strings.Replace(response, "@0]", fmt.Sprintf("@%d]", commandListIndex), 1))
				commandListFailed = true
				continue
			}
			// Buffer response (strip the final OK)
			commandListResponses.WriteString(strings.TrimSuffix(response, "OK\n"))
			if commandListOk {
				commandListResponses.WriteString("list_OK\n")
			}
			commandListIndex++
			continue
		}

		cmd, args, _ := strings.Cut(line, " ")
		var response string
		switch strings.ToLower(cmd) {
		case "idle":
			if !sess.authorized {
				response = permissionDenied("idle")
				break
			}
			parts, err := splitArgs(args)
			if err != nil {
				response = ack(ackArg, "idle", err.Error())
				break
			}
			var ok bool
			if response, ok = s.waitIdle(sess, parts, lines); !ok {
				return
			}
			s.metrics.CommandsTotal.WithLabelValues("idle", "ok").Inc()

		case "noidle":
			// Not idling; nothing to cancel
			response = "OK\n"

		case "close":
			return

		default:
			// Normal command processing
			response = s.handleCommand(sess, line)
		}

		if _, err := fmt.Fprint(conn, response); err != nil {
			logger.Warn("write error", "error", err)
			return
		}
	}
}

// readLines feeds client lines to the connection loop until the client goes
// away or the loop quits. Reading on a separate goroutine lets an idle wait
// notice noidle.
func (s *Server) readLines(conn net.Conn, lines chan<- string, quit <-chan struct{}) {
	defer s.wg.Done()
	defer close(lines)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		select {
		case lines <- line:
		case <-quit:
			return
		}
	}
}

// redact hides password arguments from logs
func redact(line string) string {
	if cmd, _, ok := strings.Cut(line, " "); ok && strings.EqualFold(cmd, "password") {
		return "password ***"
	}
	return line
}
