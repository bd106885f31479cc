//go:build !linux && !darwin

package demarc

import "syscall"

// setSocketOptions is a no-op where SO_REUSEPORT semantics are
// unavailable or differ.
func setSocketOptions(network, address string, c syscall.RawConn) error {
	return nil
}
