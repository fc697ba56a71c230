// Package clireader fetches device snapshots over SSH for devices that
// refuse SNMP. It logs in, runs the neighbor-detail show command, and
// parses the output into the same raw tables the SNMP transport
// produces.
package clireader

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/pilyon3/netdisco/internal/config"
	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/snapshot"
)

const neighborDetailCmd = "show lldp neighbors detail"

// Reader implements snapshot.Reader over an SSH command session.
type Reader struct {
	cfg     *config.Config
	Timeout time.Duration
}

var _ snapshot.Reader = (*Reader)(nil)

// New creates an SSH-backed snapshot reader.
func New(cfg *config.Config) *Reader {
	return &Reader{cfg: cfg, Timeout: 10 * time.Second}
}

// Driver names the transport.
func (r *Reader) Driver() string { return "cli" }

// Read logs into the device and parses the neighbor-detail output.
// Credential stanzas are tried in order; only stanzas tagged for the
// cli driver apply, since SNMP communities are useless here.
func (r *Reader) Read(ctx context.Context, device *domain.Device) (*snapshot.Snapshot, error) {
	var lastErr error
	for _, cred := range r.cfg.Credentials {
		if cred.Driver != "cli" {
			continue
		}
		client, err := r.connect(ctx, device.IP, cred)
		if err != nil {
			lastErr = err
			continue
		}
		out, err := r.runCommand(client, neighborDetailCmd)
		client.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return parseNeighborDetail(out), nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no cli credentials for %s", device.IP)
	}
	return nil, lastErr
}

func (r *Reader) connect(ctx context.Context, host string, cred config.Credential) (*ssh.Client, error) {
	if cred.Username == "" || cred.Password == "" {
		return nil, fmt.Errorf("cli credential %q lacks username or password", cred.Tag)
	}
	sshCfg := &ssh.ClientConfig{
		User: cred.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(cred.Password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.Timeout,
	}

	port := cred.Port
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	dialer := &net.Dialer{Timeout: r.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to establish SSH connection: %w", err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func (r *Reader) runCommand(client *ssh.Client, cmd string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	done := make(chan error, 1)
	var output []byte
	go func() {
		var runErr error
		output, runErr = session.CombinedOutput(cmd)
		done <- runErr
	}()

	select {
	case err := <-done:
		if err != nil {
			if _, ok := err.(*ssh.ExitError); ok {
				// Non-zero exit still carries usable output.
				return string(output), nil
			}
			return "", fmt.Errorf("command failed: %w", err)
		}
		return string(output), nil
	case <-time.After(r.Timeout):
		session.Signal(ssh.SIGKILL)
		return "", fmt.Errorf("command timeout")
	}
}
