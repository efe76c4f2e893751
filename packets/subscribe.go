package packets

import (
	"bytes"
	"fmt"
	"io"
)

// SubscribePacket is an internal representation of the fields of the
// SUBSCRIBE MQTT packet.
type SubscribePacket struct {
	FixedHeader
	MessageID uint16
	Topics    []string
	Qoss      []byte
}

func (s *SubscribePacket) Write(w io.Writer) error {
	var body bytes.Buffer
	body.Write(encodeUint16(s.MessageID))
	for i, topic := range s.Topics {
		body.Write(encodeString(topic))
		body.WriteByte(s.Qoss[i])
	}
	s.FixedHeader.RemainingLength = body.Len()
	packet := s.FixedHeader.pack()
	packet.Write(body.Bytes())
	_, err := packet.WriteTo(w)
	return err
}

func (s *SubscribePacket) Unpack(b io.Reader) error {
	buf := b.(*bytes.Buffer)
	midBytes := make([]byte, 2)
	if _, err := io.ReadFull(buf, midBytes); err != nil {
		return err
	}
	s.MessageID = decodeUint16(midBytes)

	for buf.Len() > 0 {
		topic, err := decodeString(buf)
		if err != nil {
			return err
		}
		qos, err := buf.ReadByte()
		if err != nil {
			return err
		}
		s.Topics = append(s.Topics, topic)
		s.Qoss = append(s.Qoss, qos)
	}
	return nil
}

func (s *SubscribePacket) Details() Details {
	return Details{Qos: 1, MessageID: s.MessageID}
}

func (s *SubscribePacket) String() string {
	return fmt.Sprintf("%s MessageID: %d topics: %v qoss: %v", s.FixedHeader, s.MessageID, s.Topics, s.Qoss)
}

// SubackPacket is an internal representation of the fields of the
// SUBACK MQTT packet.
type SubackPacket struct {
	FixedHeader
	MessageID   uint16
	ReturnCodes []byte
}

// SubackFailure is the return code a SUBACK carries for a filter the
// broker refused.
const SubackFailure = 0x80

func (sa *SubackPacket) Write(w io.Writer) error {
	var body bytes.Buffer
	body.Write(encodeUint16(sa.MessageID))
	body.Write(sa.ReturnCodes)
	sa.FixedHeader.RemainingLength = body.Len()
	packet := sa.FixedHeader.pack()
	packet.Write(body.Bytes())
	_, err := packet.WriteTo(w)
	return err
}

func (sa *SubackPacket) Unpack(b io.Reader) error {
	buf := b.(*bytes.Buffer)
	midBytes := make([]byte, 2)
	if _, err := io.ReadFull(buf, midBytes); err != nil {
		return err
	}
	sa.MessageID = decodeUint16(midBytes)
	sa.ReturnCodes = make([]byte, buf.Len())
	if _, err := io.ReadFull(buf, sa.ReturnCodes); err != nil {
		return err
	}
	return nil
}

func (sa *SubackPacket) Details() Details {
	return Details{Qos: 0, MessageID: sa.MessageID}
}

func (sa *SubackPacket) String() string {
	return fmt.Sprintf("%s MessageID: %d returnCodes: %v", sa.FixedHeader, sa.MessageID, sa.ReturnCodes)
}

// UnsubscribePacket is an internal representation of the fields of the
// UNSUBSCRIBE MQTT packet.
type UnsubscribePacket struct {
	FixedHeader
	MessageID uint16
	Topics    []string
}

func (u *UnsubscribePacket) Write(w io.Writer) error {
	var body bytes.Buffer
	body.Write(encodeUint16(u.MessageID))
	for _, topic := range u.Topics {
		body.Write(encodeString(topic))
	}
	u.FixedHeader.RemainingLength = body.Len()
	packet := u.FixedHeader.pack()
	packet.Write(body.Bytes())
	_, err := packet.WriteTo(w)
	return err
}

func (u *UnsubscribePacket) Unpack(b io.Reader) error {
	buf := b.(*bytes.Buffer)
	midBytes := make([]byte, 2)
	if _, err := io.ReadFull(buf, midBytes); err != nil {
		return err
	}
	u.MessageID = decodeUint16(midBytes)
	for buf.Len() > 0 {
		topic, err := decodeString(buf)
		if err != nil {
			return err
		}
		u.Topics = append(u.Topics, topic)
	}
	return nil
}

func (u *UnsubscribePacket) Details() Details {
	return Details{Qos: 1, MessageID: u.MessageID}
}

func (u *UnsubscribePacket) String() string {
	return fmt.Sprintf("%s MessageID: %d topics: %v", u.FixedHeader, u.MessageID, u.Topics)
}
