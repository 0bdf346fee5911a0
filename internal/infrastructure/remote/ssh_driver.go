package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/netfleet/backend/internal/core/ports"
)

var (
	ErrConnection     = errors.New("ssh: connection failed")
	ErrAuthentication = errors.New("ssh: authentication failed")
	ErrCommandFailed  = errors.New("ssh: command execution failed")
	ErrNotConnected   = errors.New("ssh: not connected")
)

// Factory builds SSH session drivers. Connection retries are not handled
// here; one Dial is one attempt, and the execution engine owns retries.
type Factory struct {
	keepAlive time.Duration
}

func NewFactory() *Factory {
	return &Factory{keepAlive: 60 * time.Second}
}

func (f *Factory) New(creds ports.SessionCredentials) ports.SessionDriver {
	if creds.Port == 0 {
		creds.Port = 22
	}
	return &driver{creds: creds, keepAlive: f.keepAlive}
}

type driver struct {
	creds     ports.SessionCredentials
	keepAlive time.Duration
	client    *ssh.Client
}

func (d *driver) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if d.creds.PrivateKey != "" {
		signer, err := ssh.ParsePrivateKey([]byte(d.creds.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("%w: invalid private key", ErrAuthentication)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	password := d.creds.Password
	if d.creds.OTPCode != "" {
		// Devices behind interactive second-factor prompts answer the
		// keyboard-interactive challenge with the cached one-time code.
		otp := d.creds.OTPCode
		methods = append(methods, ssh.KeyboardInteractive(
			func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i, q := range questions {
					if strings.Contains(strings.ToLower(q), "password") {
						answers[i] = password
					} else {
						answers[i] = otp
					}
				}
				return answers, nil
			}))
	}

	if password != "" {
		methods = append(methods, ssh.Password(password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("%w: no credentials provided", ErrAuthentication)
	}

	return methods, nil
}

// Dial establishes the session, bounded by ctx. Exactly one attempt.
func (d *driver) Dial(ctx context.Context) error {
	methods, err := d.authMethods()
	if err != nil {
		return err
	}

	timeout := 30 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	sshConfig := &ssh.ClientConfig{
		User:            d.creds.User,
		Auth:            methods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
		// Optimize for high latency / unstable networks
		Config: ssh.Config{
			Ciphers: []string{
				"chacha20-poly1305@openssh.com",
				"aes128-gcm@openssh.com",
				"aes128-ctr",
			},
		},
	}

	addr := fmt.Sprintf("%s:%d", d.creds.Host, d.creds.Port)
	dialer := net.Dialer{KeepAlive: d.keepAlive}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ctx.Err(), err)
		}
		if strings.Contains(err.Error(), "unable to authenticate") ||
			strings.Contains(err.Error(), "permission denied") {
			return fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	// Clear the handshake deadline for the long-running session.
	conn.SetDeadline(time.Time{})

	d.client = ssh.NewClient(sshConn, chans, reqs)
	return nil
}

// Run executes one command, bounded by ctx. A firing deadline tears the
// remote session down rather than leaking it.
func (d *driver) Run(ctx context.Context, cmd string) (string, error) {
	if d.client == nil {
		return "", ErrNotConnected
	}

	session, err := d.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("%w: failed to create session: %v", ErrConnection, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		session.Close()
		return "", ctx.Err()
	case err := <-done:
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			errMsg := strings.TrimSpace(stderr.String())
			if errMsg == "" {
				errMsg = err.Error()
			}
			return stdout.String(), fmt.Errorf("%w: %s", ErrCommandFailed, errMsg)
		}
	}

	return stdout.String(), nil
}

// Upload writes content to path on the device over SFTP.
func (d *driver) Upload(ctx context.Context, path string, content []byte) error {
	if d.client == nil {
		return ErrNotConnected
	}

	sftpClient, err := sftp.NewClient(d.client)
	if err != nil {
		return fmt.Errorf("%w: failed to create sftp client: %v", ErrConnection, err)
	}
	defer sftpClient.Close()

	if err := ctx.Err(); err != nil {
		return err
	}

	remoteFile, err := sftpClient.Create(path)
	if err != nil {
		return fmt.Errorf("%w: failed to create remote file %s: %v", ErrCommandFailed, path, err)
	}
	defer remoteFile.Close()

	if _, err := remoteFile.Write(content); err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", ErrCommandFailed, path, err)
	}

	return nil
}

func (d *driver) Close() error {
	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}
