// Package ssh implements the server-side SSH transport: it accepts
// connections, authenticates them, waits for a client to request the
// "netconf" subsystem on a session channel (RFC 6242 §3), and then hands
// the resulting data channel to a SessionStarter. Grounded closely on the
// teacher's netconf/server/ssh/server.go accept loop, generalized from a
// single subsystem-agnostic channel handler into one that checks for the
// "netconf" subsystem request specifically, and on config.go's
// credential-callback helpers, extended with a public-key callback
// alongside the original password one.
package ssh

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"

	xssh "golang.org/x/crypto/ssh"
)

// SessionStarter is invoked once per accepted "netconf" subsystem channel,
// with the authenticated username and the raw data channel. Implementations
// are expected to wrap ch in a dispatch.Session and call Serve.
type SessionStarter func(user string, ch xssh.Channel)

// Server listens for SSH connections and dispatches "netconf" subsystem
// channels to a SessionStarter.
type Server struct {
	listener net.Listener
}

// NewServer starts listening on address:port and accepting connections in
// the background; it returns immediately.
func NewServer(ctx context.Context, address string, port int, cfg *xssh.ServerConfig, start SessionStarter) (*Server, error) {
	l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", address, port))
	if err != nil {
		return nil, err
	}
	return newServerFromListener(l, cfg, start), nil
}

// NewUnixServer is NewServer's counterpart for a Unix domain socket family
// address: the same subsystem-gated accept loop, bound to a Unix socket
// path instead of a TCP address.
func NewUnixServer(ctx context.Context, socketPath string, cfg *xssh.ServerConfig, start SessionStarter) (*Server, error) {
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	return newServerFromListener(l, cfg, start), nil
}

func newServerFromListener(l net.Listener, cfg *xssh.ServerConfig, start SessionStarter) *Server {
	s := &Server{listener: l}
	go s.acceptConnections(cfg, start)
	return s
}

// Port reports the TCP port the server is listening on, useful when port 0
// was requested.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	return s.listener.Close()
}

func (s *Server) acceptConnections(cfg *xssh.ServerConfig, start SessionStarter) {
	for {
		nConn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(nConn, cfg, start)
	}
}

func (s *Server) handleConn(nConn net.Conn, cfg *xssh.ServerConfig, start SessionStarter) {
	svrConn, chans, reqs, err := xssh.NewServerConn(nConn, cfg)
	if err != nil {
		_ = nConn.Close()
		return
	}
	go xssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			_ = newChannel.Reject(xssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newChannel.Accept()
		if err != nil {
			continue
		}
		go s.serveChannel(svrConn, ch, requests, start)
	}
}

// serveChannel waits for the client to request the "netconf" subsystem
// before handing the channel to start, rejecting any other request type
// (RFC 6242 §3 requires the subsystem name be exactly "netconf").
func (s *Server) serveChannel(conn *xssh.ServerConn, ch xssh.Channel, requests <-chan *xssh.Request, start SessionStarter) {
	defer ch.Close()
	for req := range requests {
		isNetconf := req.Type == "subsystem" && string(req.Payload[4:]) == "netconf"
		if req.WantReply {
			_ = req.Reply(isNetconf, nil)
		}
		if isNetconf {
			start(conn.User(), ch)
			return
		}
	}
}

// PasswordConfig returns an *ssh.ServerConfig authenticating a single
// fixed username/password pair, generating a throwaway host key. Intended
// for development and the repository's own tests; production deployments
// should use PublicKeyConfig with AuthorizedKeysCallback or load a
// persistent host key with LoadHostKey.
func PasswordConfig(uname, password string) (*xssh.ServerConfig, error) {
	cfg := &xssh.ServerConfig{
		PasswordCallback: func(c xssh.ConnMetadata, pass []byte) (*xssh.Permissions, error) {
			if c.User() == uname && string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("ssh: password rejected for %q", c.User())
		},
	}
	hostKey, err := generateHostKey()
	if err != nil {
		return nil, err
	}
	cfg.AddHostKey(hostKey)
	return cfg, nil
}

// PublicKeyConfig returns an *ssh.ServerConfig authenticating against the
// given authorized-keys callback, the mechanism real NETCONF-over-SSH
// deployments use per RFC 6242 §2.
func PublicKeyConfig(hostKey xssh.Signer, authorized func(user string, key xssh.PublicKey) bool) *xssh.ServerConfig {
	cfg := &xssh.ServerConfig{
		PublicKeyCallback: func(c xssh.ConnMetadata, key xssh.PublicKey) (*xssh.Permissions, error) {
			if authorized(c.User(), key) {
				return nil, nil
			}
			return nil, fmt.Errorf("ssh: public key rejected for %q", c.User())
		},
	}
	cfg.AddHostKey(hostKey)
	return cfg
}

func generateHostKey() (xssh.Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return xssh.ParsePrivateKey(pem.EncodeToMemory(block))
}
