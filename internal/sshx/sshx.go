// SPDX-License-Identifier: AGPL-3.0-or-later
// accessbroker - subscription entitlement lifecycle engine
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// Package sshx is the single remote-command transport shared by the
// WireGuard and Xray entitlement adapters: both mutate a config-bearing
// host exclusively through short-lived SSH sessions, authenticated with
// either a password or a base64-encoded private key.
package sshx

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/sbs-poc/accessbroker/internal/config"
	"golang.org/x/crypto/ssh"
)

const (
	connectTimeout = 15 * time.Second
	commandTimeout = 15 * time.Second
	retryBackoff   = 500 * time.Millisecond
)

// Target runs commands against one remote config host over SSH.
type Target struct {
	addr       string
	clientConf *ssh.ClientConfig
}

// New builds a Target from an SSHTarget config block. Prefers the
// private key over the password when both are configured.
func New(t config.SSHTarget) (*Target, error) {
	auth, err := authMethod(t)
	if err != nil {
		return nil, err
	}

	return &Target{
		addr: fmt.Sprintf("%s:%d", t.Host, t.Port),
		clientConf: &ssh.ClientConfig{
			User:            t.User,
			Auth:            []ssh.AuthMethod{auth},
			HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // peer identity is pinned by network ACL, not host key
			Timeout:         connectTimeout,
		},
	}, nil
}

func authMethod(t config.SSHTarget) (ssh.AuthMethod, error) {
	if t.PrivateKeyBase64 != "" {
		raw, err := base64.StdEncoding.DecodeString(t.PrivateKeyBase64)
		if err != nil {
			return nil, fmt.Errorf("sshx: decoding private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("sshx: parsing private key: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	}
	return ssh.Password(t.Password), nil
}

// Run executes cmd on the target and returns its stdout. A single
// connection-and-run attempt that fails is retried once after a short
// backoff, per the adapters' shared transient-failure contract.
func (t *Target) Run(ctx context.Context, cmd string) (string, error) {
	out, err := t.runOnce(ctx, cmd)
	if err == nil {
		return out, nil
	}

	select {
	case <-time.After(retryBackoff):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	return t.runOnce(ctx, cmd)
}

func (t *Target) runOnce(ctx context.Context, cmd string) (string, error) {
	conn, err := sshDialContext(ctx, t.addr, t.clientConf)
	if err != nil {
		return "", fmt.Errorf("sshx: dial %s: %w", t.addr, err)
	}
	defer conn.Close()

	session, err := conn.NewSession()
	if err != nil {
		return "", fmt.Errorf("sshx: new session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("sshx: run %q: %w: %s", cmd, err, stderr.String())
		}
		return stdout.String(), nil
	case <-time.After(commandTimeout):
		return "", fmt.Errorf("sshx: run %q: timed out after %s", cmd, commandTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func sshDialContext(ctx context.Context, addr string, conf *ssh.ClientConfig) (*ssh.Client, error) {
	type result struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		client, err := ssh.Dial("tcp", addr, conf)
		ch <- result{client, err}
	}()

	select {
	case r := <-ch:
		return r.client, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
