package ssh

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// Client implements Transport on top of golang.org/x/crypto/ssh.
type Client struct {
	config *Config

	mu          sync.RWMutex
	client      *ssh.Client
	connectedAt time.Time
}

// NewClient creates a new SSH transport client.
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ssh config: %w", err)
	}
	return &Client{config: config}, nil
}

// Connect establishes the SSH connection. Reconnects if an existing
// connection turned out to be dead.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		if c.healthCheckLocked() == nil {
			return nil
		}
		log.Warn().Str("host", c.config.Host).Msg("existing ssh connection is dead, reconnecting")
		_ = c.client.Close()
		c.client = nil
	}

	clientConfig, err := c.config.buildClientConfig()
	if err != nil {
		return &TransportError{Op: "connect", Err: err, IsAuthError: true}
	}

	address := c.config.Address()
	log.Debug().Str("address", address).Msg("establishing ssh connection")

	connChan := make(chan *ssh.Client, 1)
	errChan := make(chan error, 1)
	go func() {
		client, err := ssh.Dial("tcp", address, clientConfig)
		if err != nil {
			errChan <- err
			return
		}
		connChan <- client
	}()

	select {
	case <-ctx.Done():
		return &TransportError{Op: "connect", Err: ctx.Err()}
	case err := <-errChan:
		return &TransportError{Op: "connect", Err: err}
	case client := <-connChan:
		c.client = client
		c.connectedAt = time.Now()
		log.Info().Str("address", address).Msg("ssh connection established")
		return nil
	}
}

// Close closes the SSH connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	if err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}

// Exec runs a command on the remote host.
func (c *Client) Exec(ctx context.Context, cmd string) (string, string, error) {
	return c.exec(ctx, cmd, false)
}

// ExecSudo runs a command with sudo privileges.
func (c *Client) ExecSudo(ctx context.Context, cmd string) (string, string, error) {
	return c.exec(ctx, cmd, true)
}

func (c *Client) exec(ctx context.Context, cmd string, useSudo bool) (string, string, error) {
	client, err := c.getClient()
	if err != nil {
		return "", "", err
	}

	session, err := client.NewSession()
	if err != nil {
		return "", "", &TransportError{Op: "exec", Err: fmt.Errorf("failed to create session: %w", err)}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	finalCmd := cmd
	if useSudo {
		finalCmd = "sudo " + cmd
	}

	log.Debug().Str("command", cmd).Bool("sudo", useSudo).Msg("executing remote command")

	doneChan := make(chan error, 1)
	go func() {
		doneChan <- session.Run(finalCmd)
	}()

	var execErr error
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		execErr = ctx.Err()
	case execErr = <-doneChan:
	}

	stdout := strings.TrimSpace(stdoutBuf.String())
	stderr := strings.TrimSpace(stderrBuf.String())

	if execErr != nil {
		if exitErr, ok := execErr.(*ssh.ExitError); ok {
			return stdout, stderr, &TransportError{
				Op:  "exec",
				Err: fmt.Errorf("command exited with code %d: %s", exitErr.ExitStatus(), stderr),
			}
		}
		return stdout, stderr, &TransportError{Op: "exec", Err: execErr}
	}
	return stdout, stderr, nil
}

// UploadBytes writes data to a file on the remote host via SFTP, creating
// parent directories as needed.
func (c *Client) UploadBytes(ctx context.Context, data []byte, remotePath string, mode uint32) error {
	client, err := c.getClient()
	if err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create sftp client: %w", err)}
	}
	defer sftpClient.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := sftpClient.MkdirAll(dir); err != nil {
			return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create %s: %w", dir, err)}
		}
	}

	f, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create %s: %w", remotePath, err)}
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return &TransportError{Op: "upload", Err: err}
	}
	if err := f.Close(); err != nil {
		return &TransportError{Op: "upload", Err: err}
	}

	if err := sftpClient.Chmod(remotePath, os.FileMode(mode)); err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to chmod %s: %w", remotePath, err)}
	}

	log.Debug().Str("path", remotePath).Int("bytes", len(data)).Msg("uploaded file")
	return nil
}

// Info describes the current connection.
func (c *Client) Info() ConnectionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConnectionInfo{
		Host:        c.config.Host,
		Port:        c.config.Port,
		User:        c.config.User,
		ConnectedAt: c.connectedAt,
	}
}

func (c *Client) getClient() (*ssh.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.client == nil {
		return nil, &TransportError{Op: "exec", Err: fmt.Errorf("not connected")}
	}
	return c.client, nil
}

// healthCheckLocked runs a trivial command to verify the connection is
// alive. Caller holds the lock.
func (c *Client) healthCheckLocked() error {
	session, err := c.client.NewSession()
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Run("true")
}
