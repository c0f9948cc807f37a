package svc

import (
	"net"
	"time"
)

// ProbeTimeout bounds a single service probe.
const ProbeTimeout = 2 * time.Second

// ProbeTCP reports whether something accepts TCP connections at addr
// (host:port). Used by the status report to check companion services
// like the offline content server without talking their protocols.
func ProbeTCP(addr string, timeout time.Duration) bool {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
