// Package codec composes encoding/xml with rfc6242 framing, exactly the
// way the teacher's netconf/common/codec package does: a Decoder pairs an
// xml.Decoder with an rfc6242.Decoder, an Encoder pairs an xml.Encoder
// with an rfc6242.Encoder, and EnableChunkedFraming flips a matched pair
// over once the hello exchange confirms both ends support it.
package codec

import (
	"encoding/xml"
	"io"

	"github.com/yangwire/ncbackend/internal/wire/codec/rfc6242"
)

// Decoder decodes successive NETCONF PDUs from a framed transport stream.
type Decoder struct {
	*xml.Decoder
	ncDecoder  *rfc6242.Decoder
	atBoundary bool
}

// Encoder encodes successive NETCONF PDUs to a framed transport stream.
type Encoder struct {
	xmlEncoder *xml.Encoder
	ncEncoder  *rfc6242.Encoder
}

// Encode writes the XML document header, msg's XML encoding, and the
// framing terminator for one complete message.
func (e *Encoder) Encode(msg interface{}) error {
	if _, err := e.ncEncoder.Write([]byte(xml.Header)); err != nil {
		return err
	}
	if err := e.xmlEncoder.Encode(msg); err != nil {
		return err
	}
	return e.ncEncoder.EndOfMessage()
}

// NewDecoder wraps t in end-of-message framing, ready to decode NETCONF
// PDUs from it.
func NewDecoder(t io.Reader) *Decoder {
	d := &Decoder{ncDecoder: rfc6242.NewDecoder(t)}
	d.Decoder = xml.NewDecoder(d)
	return d
}

// Read hands the framed stream to the embedded xml.Decoder as one stream.
// The rfc6242 decoder returns io.EOF at every message boundary, an error
// xml.Decoder would keep for good; Read passes a boundary on as a nil error
// and returns io.EOF only when the transport ends right after a boundary.
func (d *Decoder) Read(p []byte) (int, error) {
	n, err := d.ncDecoder.Read(p)
	if err == io.EOF && (n > 0 || !d.atBoundary) {
		d.atBoundary, err = true, nil
	} else {
		d.atBoundary = false
	}
	return n, err
}

// NewEncoder wraps t in end-of-message framing, ready to encode NETCONF
// PDUs to it.
func NewEncoder(t io.Writer) *Encoder {
	ncEncoder := rfc6242.NewEncoder(t)
	return &Encoder{xmlEncoder: xml.NewEncoder(ncEncoder), ncEncoder: ncEncoder}
}

// EnableChunkedFraming switches a matched decoder/encoder pair to chunked
// framing, the transition both peers make after exchanging base:1.1 in
// their capability sets.
func EnableChunkedFraming(d *Decoder, e *Encoder) {
	rfc6242.SetChunkedFraming(d.ncDecoder, e.ncEncoder)
}
