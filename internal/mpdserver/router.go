package mpdserver

import (
	"strings"
)

// handleCommand processes a single MPD command
func (s *Server) handleCommand(sess *clientSession, line string) string {
	name, rest, _ := strings.Cut(line, " ")
	command := strings.ToLower(name)

	response := s.dispatch(sess, command, rest)

	status := "ok"
	if strings.HasPrefix(response, "ACK ") {
		status = "ack"
	}
	s.metrics.CommandsTotal.WithLabelValues(metricLabel(command), status).Inc()

	return response
}

func (s *Server) dispatch(sess *clientSession, command, rest string) string {
	args, err := splitArgs(rest)
	if err != nil {
		return ack(ackArg, command, err.Error())
	}

	switch command {
	case "ping":
		return "OK\n"

	case "password":
		return s.cmdPassword(sess, args)
	}

	if !sess.authorized {
		return permissionDenied(command)
	}

	switch command {
	case "outputs":
		return s.cmdOutputs(args)

	case "enableoutput":
		return s.cmdEnableOutput(args)

	case "disableoutput":
		return s.cmdDisableOutput(args)

	case "toggleoutput":
		return s.cmdToggleOutput(args)

	default:
		return ack(ackUnknown, "", "unknown command \""+command+"\"")
	}
}

// metricLabel keeps unknown command names out of metric labels
func metricLabel(command string) string {
	switch command {
	case "ping", "password", "outputs", "enableoutput", "disableoutput", "toggleoutput":
		return command
	default:
		return "unknown"
	}
}
