package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/yangwire/ncbackend/netconf/client"
	"github.com/yangwire/ncbackend/netconf/ops"
)

// connectionConfig carries the flags every subcommand needs to dial a
// session, resolved once per invocation rather than reparsed by each verb.
type connectionConfig struct {
	target          string
	user            string
	password        string
	keyPath         string
	setupTimeout    time.Duration
	insecureHostKey bool
}

func (c *connectionConfig) dial(ctx context.Context) (ops.OpSession, error) {
	sshCfg, err := c.sshClientConfig()
	if err != nil {
		return nil, err
	}

	clientCfg := *client.DefaultConfig
	if c.setupTimeout > 0 {
		clientCfg.SetupTimeoutSecs = int(c.setupTimeout.Seconds())
	}

	sess, err := ops.NewSessionWithConfig(ctx, sshCfg, c.target, &clientCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", c.target, err)
	}

	return sess, nil
}

func (c *connectionConfig) sshClientConfig() (*ssh.ClientConfig, error) {
	if c.user == "" {
		return nil, fmt.Errorf("--user is required")
	}

	var auth []ssh.AuthMethod
	switch {
	case c.keyPath != "":
		key, err := os.ReadFile(c.keyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	default:
		auth = []ssh.AuthMethod{ssh.Password(c.password)}
	}

	cfg := &ssh.ClientConfig{
		User: c.user,
		Auth: auth,
	}
	if c.insecureHostKey {
		cfg.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint: gosec
	}
	return cfg, nil
}
