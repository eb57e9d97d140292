// Package portprobe tests whether local TCP ports are free and searches
// forward from a hint for the next free one.
package portprobe

import (
	"fmt"
	"net"
)

// maxSearchWindow bounds find_available's forward search so it always
// terminates instead of scanning to 65535 on a starved host.
const maxSearchWindow = 1000

// IsAvailable reports whether port can be bound on 127.0.0.1. Ports below
// 1024 (privileged) and outside the valid TCP range are always unavailable.
func IsAvailable(port int) bool {
	if port <= 1023 || port > 65535 {
		return false
	}
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}

// FindAvailable searches forward from start (inclusive) for the first port
// that IsAvailable accepts and that is not a member of excluded. It scans at
// most maxSearchWindow candidates; on exhaustion it returns 0 to signal
// failure, per the liveness requirement on find_available.
func FindAvailable(start int, excluded map[int]bool) int {
	for port, scanned := start, 0; scanned < maxSearchWindow && port <= 65535; port, scanned = port+1, scanned+1 {
		if excluded[port] {
			continue
		}
		if IsAvailable(port) {
			return port
		}
	}
	return 0
}
