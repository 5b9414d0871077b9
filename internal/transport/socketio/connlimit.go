package socketio

import (
	"net"
	"net/netip"
	"sync"
)

// ConnectionLimiter caps concurrent external (non-loopback) live clients.
// Loopback clients are never counted. When an external client exceeds the
// cap, the oldest external client is evicted.
type ConnectionLimiter struct {
	mu          sync.Mutex
	maxExternal int
	// oldest first
	externalClients []string
	// clientID -> whether it counts against the cap
	connections map[string]bool
}

// NewConnectionLimiter creates a limiter for up to maxExternal external
// clients. A non-positive maxExternal disables the cap.
func NewConnectionLimiter(maxExternal int) *ConnectionLimiter {
	return &ConnectionLimiter{
		maxExternal: maxExternal,
		connections: make(map[string]bool),
	}
}

// TryAdd registers a client connecting from remote (an IP or host:port). It
// always admits the new client and returns the ID of the client that must be
// disconnected to make room, or "" if none.
func (cl *ConnectionLimiter) TryAdd(clientID, remote string) (allowed bool, evictedID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.connections[clientID]; exists {
		return true, ""
	}

	external := !isLocalAddr(remote)
	cl.connections[clientID] = external
	if !external {
		return true, ""
	}

	cl.externalClients = append(cl.externalClients, clientID)
	if cl.maxExternal > 0 && len(cl.externalClients) > cl.maxExternal {
		evictedID = cl.externalClients[0]
		cl.externalClients = cl.externalClients[1:]
		delete(cl.connections, evictedID)
	}
	return true, evictedID
}

// Remove unregisters a disconnected client.
func (cl *ConnectionLimiter) Remove(clientID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	external, exists := cl.connections[clientID]
	if !exists {
		return
	}
	delete(cl.connections, clientID)
	if !external {
		return
	}

	for i, id := range cl.externalClients {
		if id == clientID {
			cl.externalClients = append(cl.externalClients[:i], cl.externalClients[i+1:]...)
			break
		}
	}
}

// External returns the number of external clients currently counted.
func (cl *ConnectionLimiter) External() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.externalClients)
}

// isLocalAddr reports whether remote is a loopback address. Ports and
// IPv4-mapped IPv6 forms are accepted.
func isLocalAddr(remote string) bool {
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return addr.Unmap().IsLoopback()
}
