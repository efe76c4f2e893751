package packets

import (
	"bytes"
	"fmt"
	"io"
)

// PublishPacket is an internal representation of the fields of the
// PUBLISH MQTT packet.
type PublishPacket struct {
	FixedHeader
	TopicName string
	MessageID uint16
	Payload   []byte
}

func (p *PublishPacket) Write(w io.Writer) error {
	var body bytes.Buffer
	body.Write(encodeString(p.TopicName))
	if p.Qos > 0 {
		body.Write(encodeUint16(p.MessageID))
	}
	p.FixedHeader.RemainingLength = body.Len() + len(p.Payload)
	packet := p.FixedHeader.pack()
	packet.Write(body.Bytes())
	packet.Write(p.Payload)
	_, err := w.Write(packet.Bytes())
	return err
}

func (p *PublishPacket) Unpack(b io.Reader) error {
	buf := b.(*bytes.Buffer)
	var err error
	if p.TopicName, err = decodeString(buf); err != nil {
		return err
	}
	if p.Qos > 0 {
		midBytes := make([]byte, 2)
		if _, err := io.ReadFull(buf, midBytes); err != nil {
			return err
		}
		p.MessageID = decodeUint16(midBytes)
	}
	p.Payload = buf.Bytes()
	return nil
}

// Copy returns a deep copy of the packet carrying an independent payload
// buffer, used when retransmitting a stored publish with duplicate=true.
func (p *PublishPacket) Copy() *PublishPacket {
	newP := NewControlPacket(Publish).(*PublishPacket)
	newP.FixedHeader = p.FixedHeader
	newP.TopicName = p.TopicName
	newP.MessageID = p.MessageID
	newP.Payload = make([]byte, len(p.Payload))
	copy(newP.Payload, p.Payload)
	return newP
}

func (p *PublishPacket) Details() Details {
	return Details{Qos: p.Qos, MessageID: p.MessageID}
}

func (p *PublishPacket) String() string {
	return fmt.Sprintf("%s topic: %s id: %d payloadlen: %d", p.FixedHeader, p.TopicName, p.MessageID, len(p.Payload))
}
