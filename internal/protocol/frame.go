// Package protocol defines the typed frames exchanged inside a session and
// their byte layout on the data channel.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformed   = errors.New("malformed frame")
	ErrUnknownTag  = fmt.Errorf("%w: unknown tag", ErrMalformed)
	ErrNameTooLong = errors.New("file name longer than 65535 bytes")
)

// Frame is one application message before encryption.
type Frame interface {
	Tag() Tag
}

type Text struct {
	Text string
}

func (Text) Tag() Tag { return TagText }

type File struct {
	Name string
	Data []byte
}

func (File) Tag() Tag { return TagFile }

type Presence struct {
	Online bool
}

func (Presence) Tag() Tag { return TagPresence }

// Encode splits a frame into its tag, the plaintext that gets encrypted and
// the metadata that travels in the clear. Only File frames carry metadata.
func Encode(f Frame) (Tag, []byte, []byte, error) {
	switch f := f.(type) {
	case Text:
		return TagText, []byte(f.Text), nil, nil
	case *Text:
		return Encode(*f)
	case File:
		if len(f.Name) > MaxNameLen {
			return 0, nil, nil, ErrNameTooLong
		}
		meta := make([]byte, NameLenSize+len(f.Name))
		binary.BigEndian.PutUint16(meta, uint16(len(f.Name)))
		copy(meta[NameLenSize:], f.Name)
		return TagFile, f.Data, meta, nil
	case *File:
		return Encode(*f)
	case Presence:
		if f.Online {
			return TagPresence, []byte(presenceOnline), nil, nil
		}
		return TagPresence, []byte(presenceOffline), nil, nil
	case *Presence:
		return Encode(*f)
	default:
		return 0, nil, nil, fmt.Errorf("unsupported frame %T", f)
	}
}

// Decode rebuilds a frame from its decrypted parts. It never returns a
// partial frame.
func Decode(tag Tag, metadata, plaintext []byte) (Frame, error) {
	switch tag {
	case TagText:
		if len(metadata) != 0 {
			return nil, fmt.Errorf("%w: text frame with metadata", ErrMalformed)
		}
		return Text{Text: string(plaintext)}, nil
	case TagFile:
		name, err := decodeName(metadata)
		if err != nil {
			return nil, err
		}
		data := make([]byte, len(plaintext))
		copy(data, plaintext)
		return File{Name: name, Data: data}, nil
	case TagPresence:
		if len(metadata) != 0 {
			return nil, fmt.Errorf("%w: presence frame with metadata", ErrMalformed)
		}
		return Presence{Online: strings.EqualFold(string(plaintext), presenceOnline)}, nil
	default:
		return nil, ErrUnknownTag
	}
}

func decodeName(metadata []byte) (string, error) {
	if len(metadata) < NameLenSize {
		return "", fmt.Errorf("%w: missing name length", ErrMalformed)
	}
	nameLen := int(binary.BigEndian.Uint16(metadata))
	if len(metadata)-NameLenSize != nameLen {
		return "", fmt.Errorf("%w: name length %d does not match %d bytes", ErrMalformed, nameLen, len(metadata)-NameLenSize)
	}
	return string(metadata[NameLenSize:]), nil
}
