package signal

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	KindRedeem    = "redeem"
	KindAccept    = "accept"
	KindReject    = "reject"
	KindNegotiate = "negotiate"

	MaxEnvelopeSize = 1 << 20
)

var ErrEnvelopeTooLarge = errors.New("signaling envelope too large")

// Envelope is one message on the signaling connection. Payload carries the
// transport's negotiation blobs and is never inspected here.
type Envelope struct {
	Kind      string
	Code      string
	ContactID string
	Name      string
	Reason    string
	Payload   []byte
}

func (e Envelope) toStruct() (*structpb.Struct, error) {
	fields := map[string]interface{}{"kind": e.Kind}
	if e.Code != "" {
		fields["code"] = e.Code
	}
	if e.ContactID != "" {
		fields["contact_id"] = e.ContactID
	}
	if e.Name != "" {
		fields["name"] = e.Name
	}
	if e.Reason != "" {
		fields["reason"] = e.Reason
	}
	if len(e.Payload) > 0 {
		fields["payload"] = base64.StdEncoding.EncodeToString(e.Payload)
	}
	return structpb.NewStruct(fields)
}

func envelopeFromStruct(s *structpb.Struct) (Envelope, error) {
	f := s.GetFields()
	e := Envelope{
		Kind:      f["kind"].GetStringValue(),
		Code:      f["code"].GetStringValue(),
		ContactID: f["contact_id"].GetStringValue(),
		Name:      f["name"].GetStringValue(),
		Reason:    f["reason"].GetStringValue(),
	}
	if e.Kind == "" {
		return Envelope{}, errors.New("envelope without kind")
	}
	if p := f["payload"].GetStringValue(); p != "" {
		payload, err := base64.StdEncoding.DecodeString(p)
		if err != nil {
			return Envelope{}, fmt.Errorf("failed to decode payload: %w", err)
		}
		e.Payload = payload
	}
	return e, nil
}

// WriteEnvelope writes a uint32 big-endian length followed by the protobuf
// encoding of e.
func WriteEnvelope(w io.Writer, e Envelope) error {
	s, err := e.toStruct()
	if err != nil {
		return err
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return err
	}
	if len(data) > MaxEnvelopeSize {
		return ErrEnvelopeTooLarge
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	_, err = w.Write(buf)
	return err
}

func ReadEnvelope(r io.Reader) (Envelope, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return Envelope{}, err
	}
	if length > MaxEnvelopeSize {
		return Envelope{}, ErrEnvelopeTooLarge
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return Envelope{}, err
	}

	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return Envelope{}, fmt.Errorf("protobuf unmarshal error: %w", err)
	}
	return envelopeFromStruct(&s)
}
