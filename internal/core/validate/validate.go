// Package validate provides shared validation functions.
package validate

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/hay-kot/parley/internal/core/chat"
)

const maxUsernameLen = 64

// Username validates a peer username: non-empty, no whitespace, and not the
// broadcast sentinel.
func Username(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("username is required")
	}
	if strings.ContainsFunc(name, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' || r == '\r' }) {
		return fmt.Errorf("username %q must not contain whitespace", name)
	}
	if len(name) > maxUsernameLen {
		return fmt.Errorf("username must be at most %d bytes", maxUsernameLen)
	}
	if name == chat.Broadcast {
		return fmt.Errorf("username %q is reserved", name)
	}
	return nil
}

// Address validates a peer address of the form host:port. The returned error
// wraps chat.ErrInvalidAddress.
func Address(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", chat.ErrInvalidAddress, addr, err)
	}
	if host == "" {
		return fmt.Errorf("%w: %q: missing host", chat.ErrInvalidAddress, addr)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return fmt.Errorf("%w: %q: port must be between 1 and 65535", chat.ErrInvalidAddress, addr)
	}
	return nil
}

// ListenAddress validates a local listen address. Unlike Address the host may
// be empty (":5000").
func ListenAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("%w: %q: %w", chat.ErrInvalidAddress, addr, err)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 0 || n > 65535 {
		return fmt.Errorf("%w: %q: invalid port", chat.ErrInvalidAddress, addr)
	}
	return nil
}
