package packets

import (
	"bytes"
	"fmt"
	"io"
)

// simpleAck is the shared shape of PUBACK, PUBREC, PUBREL and PUBCOMP:
// a fixed header plus a two-byte message id, nothing else.
type simpleAck struct {
	FixedHeader
	MessageID uint16
}

func (a *simpleAck) write(w io.Writer) error {
	var body bytes.Buffer
	body.Write(encodeUint16(a.MessageID))
	a.FixedHeader.RemainingLength = body.Len()
	packet := a.FixedHeader.pack()
	packet.Write(body.Bytes())
	_, err := packet.WriteTo(w)
	return err
}

func (a *simpleAck) unpack(b io.Reader) error {
	buf := b.(*bytes.Buffer)
	midBytes := make([]byte, 2)
	if _, err := io.ReadFull(buf, midBytes); err != nil {
		return err
	}
	a.MessageID = decodeUint16(midBytes)
	return nil
}

// PubackPacket acknowledges a QoS 1 PUBLISH.
type PubackPacket struct{ simpleAck }

func (p *PubackPacket) Write(w io.Writer) error  { return p.write(w) }
func (p *PubackPacket) Unpack(b io.Reader) error { return p.unpack(b) }
func (p *PubackPacket) Details() Details         { return Details{Qos: 0, MessageID: p.MessageID} }
func (p *PubackPacket) String() string           { return fmt.Sprintf("%s MessageID: %d", p.FixedHeader, p.MessageID) }

// PubrecPacket is the first step of the QoS 2 outbound release cycle.
type PubrecPacket struct{ simpleAck }

func (p *PubrecPacket) Write(w io.Writer) error  { return p.write(w) }
func (p *PubrecPacket) Unpack(b io.Reader) error { return p.unpack(b) }
func (p *PubrecPacket) Details() Details         { return Details{Qos: 0, MessageID: p.MessageID} }
func (p *PubrecPacket) String() string           { return fmt.Sprintf("%s MessageID: %d", p.FixedHeader, p.MessageID) }

// PubrelPacket is the second step of the QoS 2 release cycle, sent in
// both directions; it is the only one of this family with QoS 1 set on
// its own fixed header (per MQTT 3.1.1 §3.6.1).
type PubrelPacket struct{ simpleAck }

func (p *PubrelPacket) Write(w io.Writer) error  { return p.write(w) }
func (p *PubrelPacket) Unpack(b io.Reader) error { return p.unpack(b) }
func (p *PubrelPacket) Details() Details         { return Details{Qos: 1, MessageID: p.MessageID} }
func (p *PubrelPacket) String() string           { return fmt.Sprintf("%s MessageID: %d", p.FixedHeader, p.MessageID) }

// PubcompPacket completes the QoS 2 release cycle.
type PubcompPacket struct{ simpleAck }

func (p *PubcompPacket) Write(w io.Writer) error  { return p.write(w) }
func (p *PubcompPacket) Unpack(b io.Reader) error { return p.unpack(b) }
func (p *PubcompPacket) Details() Details         { return Details{Qos: 0, MessageID: p.MessageID} }
func (p *PubcompPacket) String() string           { return fmt.Sprintf("%s MessageID: %d", p.FixedHeader, p.MessageID) }

// UnsubackPacket acknowledges an UNSUBSCRIBE.
type UnsubackPacket struct{ simpleAck }

func (u *UnsubackPacket) Write(w io.Writer) error  { return u.write(w) }
func (u *UnsubackPacket) Unpack(b io.Reader) error { return u.unpack(b) }
func (u *UnsubackPacket) Details() Details         { return Details{Qos: 0, MessageID: u.MessageID} }
func (u *UnsubackPacket) String() string           { return fmt.Sprintf("%s MessageID: %d", u.FixedHeader, u.MessageID) }

// PingreqPacket has no variable header or payload.
type PingreqPacket struct{ FixedHeader }

func (p *PingreqPacket) Write(w io.Writer) error {
	packet := p.FixedHeader.pack()
	_, err := packet.WriteTo(w)
	return err
}
func (p *PingreqPacket) Unpack(io.Reader) error { return nil }
func (p *PingreqPacket) Details() Details       { return Details{Qos: 0, MessageID: 0} }
func (p *PingreqPacket) String() string         { return p.FixedHeader.String() }

// PingrespPacket has no variable header or payload.
type PingrespPacket struct{ FixedHeader }

func (p *PingrespPacket) Write(w io.Writer) error {
	packet := p.FixedHeader.pack()
	_, err := packet.WriteTo(w)
	return err
}
func (p *PingrespPacket) Unpack(io.Reader) error { return nil }
func (p *PingrespPacket) Details() Details       { return Details{Qos: 0, MessageID: 0} }
func (p *PingrespPacket) String() string         { return p.FixedHeader.String() }

// DisconnectPacket has no variable header or payload.
type DisconnectPacket struct{ FixedHeader }

func (d *DisconnectPacket) Write(w io.Writer) error {
	packet := d.FixedHeader.pack()
	_, err := packet.WriteTo(w)
	return err
}
func (d *DisconnectPacket) Unpack(io.Reader) error { return nil }
func (d *DisconnectPacket) Details() Details       { return Details{Qos: 0, MessageID: 0} }
func (d *DisconnectPacket) String() string         { return d.FixedHeader.String() }
