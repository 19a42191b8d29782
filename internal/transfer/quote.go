package transfer

import "strings"

// Quote wraps value in POSIX single quotes so it can be interpolated into a
// remote shell command. Remote paths are user-controlled and may contain
// spaces, quotes, or shell metacharacters; every path argument handed to the
// control channel goes through here.
func Quote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
