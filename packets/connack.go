package packets

import (
	"bytes"
	"fmt"
	"io"
)

// ConnackPacket is an internal representation of the fields of the
// CONNACK MQTT packet.
type ConnackPacket struct {
	FixedHeader
	SessionPresent bool
	ReturnCode     byte
}

func (ca *ConnackPacket) Write(w io.Writer) error {
	var body bytes.Buffer
	body.WriteByte(boolToByte(ca.SessionPresent))
	body.WriteByte(ca.ReturnCode)
	ca.FixedHeader.RemainingLength = body.Len()
	packet := ca.FixedHeader.pack()
	packet.Write(body.Bytes())
	_, err := packet.WriteTo(w)
	return err
}

func (ca *ConnackPacket) Unpack(b io.Reader) error {
	buf := b.(*bytes.Buffer)
	flags, err := buf.ReadByte()
	if err != nil {
		return err
	}
	ca.SessionPresent = flags&0x01 > 0
	if ca.ReturnCode, err = buf.ReadByte(); err != nil {
		return err
	}
	return nil
}

func (ca *ConnackPacket) Details() Details {
	return Details{Qos: 0, MessageID: 0}
}

func (ca *ConnackPacket) String() string {
	return fmt.Sprintf("%s sessionPresent: %t returnCode: %d", ca.FixedHeader, ca.SessionPresent, ca.ReturnCode)
}
