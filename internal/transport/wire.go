package transport

import "sync"

// wireStats tallies traffic across the client's round trips. Updated
// concurrently by every in-flight call.
type wireStats struct {
	mu        sync.Mutex
	requests  int64
	bytesSent int64
	bytesRecv int64
}

func (s *wireStats) record(sent, received int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests++
	s.bytesSent += sent
	s.bytesRecv += received
}

// WireStats is a point-in-time snapshot of the client's traffic
// counters.
type WireStats struct {
	Requests      int64 `json:"requests"`
	BytesSent     int64 `json:"bytes_sent"`
	BytesReceived int64 `json:"bytes_received"`
}

// Wire returns a consistent snapshot of the traffic counters.
func (c *Client) Wire() WireStats {
	c.wire.mu.Lock()
	defer c.wire.mu.Unlock()
	return WireStats{
		Requests:      c.wire.requests,
		BytesSent:     c.wire.bytesSent,
		BytesReceived: c.wire.bytesRecv,
	}
}
