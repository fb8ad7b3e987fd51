// Package ssh provides the SSH transport the remote-VM deployment target
// executes its commands and file uploads through.
package ssh

import (
	"context"
	"time"
)

// Transport is the remote execution surface the remote-VM target depends
// on. It is an interface so tests can substitute a recording fake for the
// real SSH client.
type Transport interface {
	// Connect establishes the SSH connection.
	Connect(ctx context.Context) error

	// Close closes the connection and releases all resources.
	Close() error

	// Exec runs a command on the remote host and returns stdout and stderr.
	Exec(ctx context.Context, cmd string) (stdout string, stderr string, err error)

	// ExecSudo runs a command with sudo privileges. NOPASSWD sudo is
	// assumed; the target provisions hosts that way.
	ExecSudo(ctx context.Context, cmd string) (stdout string, stderr string, err error)

	// UploadBytes writes data to a file on the remote host via SFTP.
	UploadBytes(ctx context.Context, data []byte, remotePath string, mode uint32) error

	// Info describes the connection.
	Info() ConnectionInfo
}

// ConnectionInfo describes an SSH connection.
type ConnectionInfo struct {
	// Host is the remote hostname or IP address.
	Host string

	// Port is the SSH port.
	Port int

	// User is the SSH username.
	User string

	// ConnectedAt is when the connection was established.
	ConnectedAt time.Time
}

// TransportError is an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g. "connect", "exec", "upload").
	Op string

	// Err is the underlying error.
	Err error

	// IsAuthError marks authentication failures.
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
