package ops

import (
	"context"

	"golang.org/x/crypto/ssh"

	"github.com/yangwire/ncbackend/netconf/client"
)

// NewSession connects to target using the SSH configuration, and
// establishes a NETCONF session with default configuration.
func NewSession(ctx context.Context, sshcfg *ssh.ClientConfig, target string) (OpSession, error) {
	return NewSessionWithConfig(ctx, sshcfg, target, client.DefaultConfig)
}

// NewSessionWithConfig connects to target using the SSH configuration, and
// establishes a NETCONF session with the supplied client configuration.
func NewSessionWithConfig(ctx context.Context, sshcfg *ssh.ClientConfig, target string, cfg *client.Config) (OpSession, error) {
	cs, err := client.NewRPCSessionWithConfig(ctx, sshcfg, target, cfg)
	if err != nil {
		return nil, err
	}
	return FromClientSession(cs), nil
}

// FromClientSession wraps an already-established client.Session with the
// standard NETCONF operations, for callers that build their own transport
// (tests, non-SSH transports) instead of going through NewSession.
func FromClientSession(cs client.Session) OpSession {
	return &sImpl{Session: cs}
}
