package protocol

import (
	"encoding/binary"
	"fmt"
)

// WireMessage is the encrypted form of a frame as it appears on the channel:
//
//	tag(1) | nonce(12) | [name_len(2) | name] | ciphertext+tag
type WireMessage struct {
	Tag        Tag
	Nonce      [NonceSize]byte
	Metadata   []byte
	Ciphertext []byte
}

// WireSize returns the encoded length of a message carrying metadata and
// plaintext of the given sizes.
func WireSize(metadata, plaintext int) int {
	return HeaderSize + metadata + plaintext + AuthTagSize
}

func (m WireMessage) Marshal() []byte {
	buf := make([]byte, 0, HeaderSize+len(m.Metadata)+len(m.Ciphertext))
	buf = append(buf, byte(m.Tag))
	buf = append(buf, m.Nonce[:]...)
	buf = append(buf, m.Metadata...)
	buf = append(buf, m.Ciphertext...)
	return buf
}

// ParseWire splits raw channel bytes into a WireMessage. Truncated input and
// unknown tags are reported as ErrMalformed.
func ParseWire(data []byte) (WireMessage, error) {
	var m WireMessage
	if len(data) < HeaderSize {
		return m, fmt.Errorf("%w: %d bytes is shorter than header", ErrMalformed, len(data))
	}

	m.Tag = Tag(data[0])
	if !m.Tag.valid() {
		return m, ErrUnknownTag
	}
	copy(m.Nonce[:], data[1:HeaderSize])
	offset := HeaderSize

	if m.Tag == TagFile {
		if len(data) < offset+NameLenSize {
			return m, fmt.Errorf("%w: missing name length", ErrMalformed)
		}
		nameLen := int(binary.BigEndian.Uint16(data[offset:]))
		end := offset + NameLenSize + nameLen
		if len(data) < end {
			return m, fmt.Errorf("%w: name length %d exceeds buffer", ErrMalformed, nameLen)
		}
		m.Metadata = append([]byte(nil), data[offset:end]...)
		offset = end
	}

	if len(data)-offset < AuthTagSize {
		return m, fmt.Errorf("%w: ciphertext shorter than auth tag", ErrMalformed)
	}
	m.Ciphertext = append([]byte(nil), data[offset:]...)
	return m, nil
}
