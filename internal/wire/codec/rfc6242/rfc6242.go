// Package rfc6242 implements the two NETCONF message-framing mechanisms
// RFC 6242 defines: the base end-of-message marker ("]]>]]>") used under
// the base:1.0 capability, and chunked framing used once both peers have
// negotiated base:1.1. Every Decoder/Encoder starts in end-of-message mode;
// SetChunkedFraming switches a matched pair over once capability exchange
// confirms both ends support it, mirroring the upstream codec.Decoder /
// codec.Encoder pair that wraps these as the underlying io.Reader/io.Writer
// for an encoding/xml Decoder/Encoder.
package rfc6242

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const eomMarker = "]]>]]>"

// Decoder frames a byte stream into successive NETCONF messages. Each
// logical message ends with io.EOF from Read; the next Read call after
// that EOF begins framing the following message, so a single Decoder
// spans an entire session the way the upstream codec package expects.
type Decoder struct {
	r         *bufio.Reader
	chunked   bool
	remaining int  // chunked mode: bytes left in the current chunk
	needHdr   bool // chunked mode: next Read must parse a chunk header first
}

// NewDecoder wraps r in end-of-message framing.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 4096), needHdr: true}
}

// Read implements io.Reader, returning io.EOF exactly at a message boundary.
func (d *Decoder) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if d.chunked {
		return d.readChunked(p)
	}
	return d.readEOM(p)
}

func (d *Decoder) readEOM(p []byte) (int, error) {
	for i := 0; i < len(p); i++ {
		peek, _ := d.r.Peek(len(eomMarker))
		if len(peek) == len(eomMarker) && string(peek) == eomMarker {
			if _, err := d.r.Discard(len(eomMarker)); err != nil {
				return i, err
			}
			return i, io.EOF
		}
		b, err := d.r.ReadByte()
		if err != nil {
			return i, err
		}
		p[i] = b
	}
	return len(p), nil
}

func (d *Decoder) readChunked(p []byte) (int, error) {
	if d.needHdr {
		atEnd, err := d.readChunkHeader()
		if err != nil {
			return 0, err
		}
		if atEnd {
			d.needHdr = true
			return 0, io.EOF
		}
	}

	n := len(p)
	if n > d.remaining {
		n = d.remaining
	}
	read, err := d.r.Read(p[:n])
	d.remaining -= read
	if d.remaining == 0 {
		d.needHdr = true
	}
	return read, err
}

// readChunkHeader consumes one "\n#SIZE\n" chunk header or the terminating
// "\n##\n" end-of-chunks token, per RFC 6242 §4.2. atEnd is true on the
// latter.
func (d *Decoder) readChunkHeader() (atEnd bool, err error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return false, err
	}
	if b != '\n' {
		return false, fmt.Errorf("rfc6242: malformed chunk header, expected '\\n', got %q", b)
	}
	b, err = d.r.ReadByte()
	if err != nil {
		return false, err
	}
	if b != '#' {
		return false, fmt.Errorf("rfc6242: malformed chunk header, expected '#', got %q", b)
	}
	line, err := d.r.ReadString('\n')
	if err != nil {
		return false, err
	}
	line = strings.TrimSuffix(line, "\n")
	if line == "#" {
		return true, nil
	}
	size, err := strconv.Atoi(line)
	if err != nil || size <= 0 {
		return false, fmt.Errorf("rfc6242: malformed chunk size %q", line)
	}
	d.remaining = size
	d.needHdr = false
	return false, nil
}

// Encoder writes successive NETCONF messages to w, framed per the active
// mode. Call EndOfMessage after writing each message's XML body.
type Encoder struct {
	w       io.Writer
	chunked bool
}

// NewEncoder wraps w in end-of-message framing.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Write frames p as chunk data (chunked mode) or passes it straight
// through (end-of-message mode, where the marker is only written at the
// end of the message).
func (e *Encoder) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if !e.chunked {
		return e.w.Write(p)
	}
	if _, err := fmt.Fprintf(e.w, "\n#%d\n", len(p)); err != nil {
		return 0, err
	}
	return e.w.Write(p)
}

// EndOfMessage writes the framing terminator for the message just written:
// the end-of-message marker, or the chunked end-of-chunks token.
func (e *Encoder) EndOfMessage() error {
	if e.chunked {
		_, err := e.w.Write([]byte("\n##\n"))
		return err
	}
	_, err := e.w.Write([]byte(eomMarker))
	return err
}

// SetChunkedFraming switches a matched decoder/encoder pair from
// end-of-message to chunked framing, once capability exchange confirms
// both NETCONF peers support base:1.1.
func SetChunkedFraming(d *Decoder, e *Encoder) {
	d.chunked = true
	d.needHdr = true
	e.chunked = true
}
