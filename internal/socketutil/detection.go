// Package socketutil provides shared utilities for detecting a running server.
//
// Detection opens a TCP connection and closes it without sending anything, so
// the server counts every check as a failed request on the port it hits:
// an issue failure on the issuing port, a malformed submission on the
// validating port. Callers should check as few ports as they can.
package socketutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/codefionn/tokengate/internal/consts"
	"github.com/codefionn/tokengate/internal/logger"
)

// SocketDetectionTimeout is how long to wait for socket detection
const SocketDetectionTimeout = consts.Timeout1Second

// ErrServerNotReady is returned by WaitForServer when ctx ends first.
var ErrServerNotReady = errors.New("server not ready")

// DetectServer reports whether something accepts TCP connections on host:port.
func DetectServer(ctx context.Context, host string, port int) bool {
	ctx, cancel := context.WithTimeout(ctx, SocketDetectionTimeout)
	defer cancel()

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		logger.Debug("No server answering on %s: %v", addr, err)
		return false
	}
	conn.Close()
	return true
}

// WaitForServer polls every interval until all ports on host accept
// connections or ctx ends.
func WaitForServer(ctx context.Context, host string, ports []int, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ready := true
		for _, port := range ports {
			if !DetectServer(ctx, host, port) {
				ready = false
				break
			}
		}
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrServerNotReady, DetectionInfo(context.Background(), host, ports))
		case <-ticker.C:
		}
	}
}

// DetectionInfo describes which ports on host answer, for log and error
// messages.
func DetectionInfo(ctx context.Context, host string, ports []int) string {
	parts := make([]string, 0, len(ports))
	for _, port := range ports {
		state := "not responding"
		if DetectServer(ctx, host, port) {
			state = "active"
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", net.JoinHostPort(host, strconv.Itoa(port)), state))
	}
	return strings.Join(parts, ", ")
}
