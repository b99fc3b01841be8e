package mpdserver

import (
	"errors"
	"fmt"
	"strings"
)

// ACK error codes
const (
	ackArg        = 2
	ackPassword   = 3
	ackPermission = 4
	ackUnknown    = 5
	ackNoExist    = 50
)

// ack formats an error response. The list index is always 0; command lists
// patch it.
func ack(code int, command, message string) string {
	return fmt.Sprintf("ACK [%d@0] {%s} %s\n", code, command, message)
}

func permissionDenied(command string) string {
	return ack(ackPermission, command, fmt.Sprintf("you don't have permission for \"%s\"", command))
}

// splitArgs tokenizes a command's arguments. Arguments are separated by
// blanks and may be double-quoted, with backslash escaping inside quotes.
func splitArgs(s string) ([]string, error) {
	var args []string
	i := 0
	for {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			return args, nil
		}

		if s[i] != '"' {
			start := i
			for i < len(s) && s[i] != ' ' && s[i] != '\t' {
				if s[i] == '"' {
					return nil, errors.New("invalid unquoted character")
				}
				i++
			}
			args = append(args, s[start:i])
			continue
		}

		var arg strings.Builder
		i++
		for {
			if i >= len(s) {
				return nil, errors.New("missing closing '\"'")
			}
			c := s[i]
			if c == '"' {
				i++
				break
			}
			if c == '\\' {
				i++
				if i >= len(s) {
					return nil, errors.New("missing closing '\"'")
				}
				c = s[i]
			}
			arg.WriteByte(c)
			i++
		}
		if i < len(s) && s[i] != ' ' && s[i] != '\t' {
			return nil, errors.New("space expected after closing '\"'")
		}
		args = append(args, arg.String())
	}
}
