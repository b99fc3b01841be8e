package mpdserver

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// cmdOutputs handles the 'outputs' command
// Returns the list of audio outputs with their ids and states
func (s *Server) cmdOutputs(_ []string) string {
	var response strings.Builder
	for id, o := range s.outputs.snapshot() {
		fmt.Fprintf(&response, "outputid: %d\n", id)
		fmt.Fprintf(&response, "outputname: %s\n", o.Name)
		if o.Plugin != "" {
			fmt.Fprintf(&response, "plugin: %s\n", o.Plugin)
		}
		if o.Enabled {
			response.WriteString("outputenabled: 1\n")
		} else {
			response.WriteString("outputenabled: 0\n")
		}

		keys := make([]string, 0, len(o.Attributes))
		for k := range o.Attributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&response, "attribute: %s=%s\n", k, o.Attributes[k])
		}
	}
	response.WriteString("OK\n")

	return response.String()
}

// cmdEnableOutput handles the 'enableoutput' command
func (s *Server) cmdEnableOutput(args []string) string {
	return s.setOutput("enableoutput", args, func(bool) bool { return true })
}

// cmdDisableOutput handles the 'disableoutput' command
func (s *Server) cmdDisableOutput(args []string) string {
	return s.setOutput("disableoutput", args, func(bool) bool { return false })
}

// cmdToggleOutput handles the 'toggleoutput' command
func (s *Server) cmdToggleOutput(args []string) string {
	return s.setOutput("toggleoutput", args, func(enabled bool) bool { return !enabled })
}

// setOutput applies next to the output addressed by args[0] and notifies
// idle clients when the state changed.
func (s *Server) setOutput(command string, args []string, next func(bool) bool) string {
	if len(args) != 1 {
		return ack(ackArg, command, "wrong number of arguments for \""+command+"\"")
	}

	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return ack(ackArg, command, "Integer expected: "+args[0])
	}

	changed, err := s.outputs.update(id, next)
	if err != nil {
		return ack(ackNoExist, command, "No such audio output")
	}

	if changed {
		s.logger.Info("output changed", "command", command, "id", id)
		s.metrics.OutputChanges.Inc()
		s.NotifySubsystemChange("output")
	}

	return "OK\n"
}

// cmdPassword handles the 'password' command
func (s *Server) cmdPassword(sess *clientSession, args []string) string {
	if len(args) != 1 {
		return ack(ackArg, "password", "wrong number of arguments for \"password\"")
	}
	if s.password == "" || args[0] != s.password {
		return ack(ackPassword, "password", "incorrect password")
	}

	sess.authorized = true
	return "OK\n"
}
