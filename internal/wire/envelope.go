package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// The tagged envelope replaces arity sniffing with an explicit version and
// kind ahead of the MessagePack body:
//
//	1: version (varint)
//	2: kind    (varint)
//	3: body    (bytes)
//
// Unknown fields are skipped.

const EnvelopeVersion = 1

type Kind uint64

const (
	KindSnapshot Kind = 1
	KindCommand  Kind = 2
)

const (
	fieldVersion protowire.Number = 1
	fieldKind    protowire.Number = 2
	fieldBody    protowire.Number = 3
)

var ErrEnvelope = errors.New("bad envelope")

// envelopeLead is the first byte of every sealed datagram: field 1, varint.
// Raw snapshots start with a MessagePack array header (0x9X or 0xdc/0xdd)
// and raw commands with a map header, so the two never collide.
var envelopeLead = byte(protowire.EncodeTag(fieldVersion, protowire.VarintType))

func IsEnveloped(data []byte) bool {
	return len(data) > 0 && data[0] == envelopeLead
}

func Seal(kind Kind, body []byte) []byte {
	b := make([]byte, 0, len(body)+8)
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, EnvelopeVersion)
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(kind))
	b = protowire.AppendTag(b, fieldBody, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	return b
}

func Open(data []byte) (Kind, []byte, error) {
	var (
		version, kind uint64
		body          []byte
		seen          [4]bool
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return 0, nil, fmt.Errorf("%w: %v", ErrEnvelope, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case (num == fieldVersion || num == fieldKind) && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return 0, nil, fmt.Errorf("%w: %v", ErrEnvelope, protowire.ParseError(n))
			}
			if num == fieldVersion {
				version = v
			} else {
				kind = v
			}
			seen[num] = true
			data = data[n:]
		case num == fieldBody && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return 0, nil, fmt.Errorf("%w: %v", ErrEnvelope, protowire.ParseError(n))
			}
			body = v
			seen[num] = true
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return 0, nil, fmt.Errorf("%w: %v", ErrEnvelope, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}

	if !seen[fieldVersion] || !seen[fieldKind] || !seen[fieldBody] {
		return 0, nil, fmt.Errorf("%w: missing field", ErrEnvelope)
	}
	if version != EnvelopeVersion {
		return 0, nil, fmt.Errorf("%w: version %d", ErrEnvelope, version)
	}
	return Kind(kind), body, nil
}
