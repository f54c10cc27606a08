// Package framing implements the on-wire layout shared by every packet this
// module sends: a 2-byte length header followed by CBOR-encoded metadata and
// a CBOR-encoded body.
//
// Grounded on _examples/original_source/big-brother/src/serdes.rs, which
// frames as [u8 metadata_size][u8 packet_size][metadata][packet] using
// postcard. CBOR (github.com/fxamacker/cbor/v2) stands in for postcard here:
// both are compact self-describing binary codecs, and cbor is the library
// the rest of the example pack reaches for when it needs one (see
// DESIGN.md). Because cbor doesn't give us Rust's tagged-union enums for
// free, the body is prefixed with a 1-byte Kind discriminant so a
// MetaPacket/UserPacket pair round-trips the way BigBrotherPacket<T> does.
package framing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind discriminates the two packet bodies this module ever sends, mirroring
// the MetaPacket/UserPacket arms of BigBrotherPacket<T>.
type Kind uint8

const (
	KindHeartbeat Kind = iota
	KindUser
)

// Metadata travels ahead of every body: who it's from, who it's to, and the
// dedupe counter it was sent under.
type Metadata[A any] struct {
	ToAddr   A
	FromAddr A
	Counter  uint32
}

// Heartbeat is the sole metapacket this module defines today.
type Heartbeat struct {
	SessionID uint32
}

// ErrFrameTooLarge mirrors SerdesError::PacketTooLong: the encoded metadata
// or body exceeded what a single byte can address (255 bytes each).
type ErrFrameTooLarge struct {
	Part string
	Size int
}

func (e ErrFrameTooLarge) Error() string {
	return fmt.Sprintf("framing: encoded %s is %d bytes, exceeds 255-byte limit", e.Part, e.Size)
}

// EncodeHeartbeat writes a heartbeat frame into buf and returns the number of
// bytes used.
func EncodeHeartbeat[A any](buf []byte, to, from A, counter uint32, hb Heartbeat) (int, error) {
	return encode(buf, to, from, counter, KindHeartbeat, hb)
}

// EncodeUser writes a user-packet frame into buf and returns the number of
// bytes used.
func EncodeUser[A any, P any](buf []byte, to, from A, counter uint32, packet P) (int, error) {
	return encode(buf, to, from, counter, KindUser, packet)
}

func encode[A any, B any](buf []byte, to, from A, counter uint32, kind Kind, body B) (int, error) {
	metadata := Metadata[A]{ToAddr: to, FromAddr: from, Counter: counter}

	metadataBytes, err := cbor.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("framing: encode metadata: %w", err)
	}
	if len(metadataBytes) > 255 {
		return 0, ErrFrameTooLarge{Part: "metadata", Size: len(metadataBytes)}
	}

	bodyBytes, err := cbor.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("framing: encode body: %w", err)
	}
	// +1 for the Kind discriminant byte prefixed onto the body.
	if len(bodyBytes)+1 > 255 {
		return 0, ErrFrameTooLarge{Part: "body", Size: len(bodyBytes) + 1}
	}

	total := 2 + len(metadataBytes) + 1 + len(bodyBytes)
	if total > len(buf) {
		return 0, fmt.Errorf("framing: frame of %d bytes does not fit in %d-byte buffer", total, len(buf))
	}

	buf[0] = byte(len(metadataBytes))
	buf[1] = byte(len(bodyBytes) + 1)

	ptr := 2
	ptr += copy(buf[ptr:], metadataBytes)
	buf[ptr] = byte(kind)
	ptr++
	ptr += copy(buf[ptr:], bodyBytes)

	return ptr, nil
}

// DecodeMetadata reads only the metadata section of a frame.
func DecodeMetadata[A any](frame []byte) (Metadata[A], error) {
	var metadata Metadata[A]

	if len(frame) < 2 {
		return metadata, fmt.Errorf("framing: frame shorter than header")
	}

	metadataSize := int(frame[0])
	if len(frame) < 2+metadataSize {
		return metadata, fmt.Errorf("framing: frame truncated before end of metadata")
	}

	if err := cbor.Unmarshal(frame[2:2+metadataSize], &metadata); err != nil {
		return metadata, fmt.Errorf("framing: decode metadata: %w", err)
	}

	return metadata, nil
}

// DecodeBody reads the kind discriminant and, depending on kind, either the
// heartbeat or the user payload out of frame. Exactly one of heartbeat/user
// is populated, selected by the returned Kind.
func DecodeBody[P any](frame []byte) (kind Kind, heartbeat Heartbeat, user P, err error) {
	if len(frame) < 2 {
		err = fmt.Errorf("framing: frame shorter than header")
		return
	}

	metadataSize := int(frame[0])
	bodySize := int(frame[1])
	bodyStart := 2 + metadataSize

	if len(frame) < bodyStart+bodySize {
		err = fmt.Errorf("framing: frame truncated before end of body")
		return
	}
	if bodySize < 1 {
		err = fmt.Errorf("framing: body has no kind discriminant")
		return
	}

	kind = Kind(frame[bodyStart])
	payload := frame[bodyStart+1 : bodyStart+bodySize]

	switch kind {
	case KindHeartbeat:
		err = cbor.Unmarshal(payload, &heartbeat)
	case KindUser:
		err = cbor.Unmarshal(payload, &user)
	default:
		err = fmt.Errorf("framing: unknown body kind %d", kind)
	}
	if err != nil {
		err = fmt.Errorf("framing: decode body: %w", err)
	}

	return
}
