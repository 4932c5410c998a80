package client

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// The Secure Transport layer provides a communication path between the
// client and server; NETCONF can be layered over any transport protocol
// that provides the basic requirements RFC 6241 §3 lists. This one is SSH,
// requesting the "netconf" subsystem RFC 6242 §3 defines.

// Transport is the byte stream a Session reads framed NETCONF PDUs from
// and writes them to.
type Transport interface {
	io.ReadWriteCloser
	// Target reports the dialed address, used for trace and error context.
	Target() string
}

// Dialer bundles the SSH client configuration a session connects with,
// kept separate from the target address so one Dialer can be reused
// across calls to NewSSHTransport.
type Dialer struct {
	target string
	cfg    *ssh.ClientConfig
}

// NewDialer returns a Dialer that connects to target with cfg.
func NewDialer(target string, cfg *ssh.ClientConfig) *Dialer {
	return &Dialer{target: target, cfg: cfg}
}

type tImpl struct {
	target  string
	client  *ssh.Client
	session *ssh.Session
	trace   *ClientTrace
	io.Reader
	io.WriteCloser
}

// NewSSHTransport dials d's target over SSH and requests the "netconf"
// subsystem on a session channel. target is used for trace and error
// context and is expected to match d's own dial target.
func NewSSHTransport(ctx context.Context, d *Dialer, target string) (rt Transport, err error) {
	trace := ContextClientTrace(ctx)

	trace.ConnectStart(target)
	connectBegin := time.Now()
	defer func() {
		trace.ConnectDone(target, err, time.Since(connectBegin))
	}()

	t := &tImpl{target: target, trace: trace}
	defer func() {
		if err != nil {
			_ = t.Close()
		}
	}()

	trace.DialStart(d.cfg, target)
	dialBegin := time.Now()
	t.client, err = ssh.Dial("tcp", d.target, d.cfg)
	trace.DialDone(d.cfg, target, err, time.Since(dialBegin))
	if err != nil {
		return nil, errors.Wrap(err, "ssh dial failed")
	}

	if t.session, err = t.client.NewSession(); err != nil {
		return nil, errors.Wrap(err, "new ssh session failed")
	}

	if err = t.session.RequestSubsystem("netconf"); err != nil {
		return nil, errors.Wrap(err, "request netconf subsystem failed")
	}

	if t.Reader, err = t.session.StdoutPipe(); err != nil {
		return nil, errors.Wrap(err, "stdout pipe failed")
	}
	if t.WriteCloser, err = t.session.StdinPipe(); err != nil {
		return nil, errors.Wrap(err, "stdin pipe failed")
	}

	return t, nil
}

// Target reports the address this transport was dialed against.
func (t *tImpl) Target() string { return t.target }

func (t *tImpl) Read(p []byte) (c int, err error) {
	t.trace.ReadStart(p)
	defer func(begin time.Time) {
		t.trace.ReadDone(p, c, err, time.Since(begin))
	}(time.Now())
	return t.Reader.Read(p)
}

func (t *tImpl) Write(p []byte) (c int, err error) {
	t.trace.WriteStart(p)
	defer func(begin time.Time) {
		t.trace.WriteDone(p, c, err, time.Since(begin))
	}(time.Now())
	return t.WriteCloser.Write(p)
}

// Close closes the stdin pipe, the SSH session and then the SSH client, in
// that order, returning the first error encountered.
func (t *tImpl) Close() (err error) {
	defer func() {
		t.trace.ConnectionClosed(t.target, err)
	}()

	var writeErr, sessionErr error
	if t.WriteCloser != nil {
		writeErr = t.WriteCloser.Close()
	}
	if t.session != nil {
		sessionErr = t.session.Close()
	}
	if t.client != nil {
		err = t.client.Close()
	}
	if err == nil {
		err = writeErr
	}
	if err == nil {
		err = sessionErr
	}
	return err
}
