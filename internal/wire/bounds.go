package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

var errShortPacket = errors.New("declared length runs past end of packet")

// checkBounds walks the first MessagePack value in data without allocating
// and fails if any header declares more elements or bytes than remain. Once it
// passes, no length the decoder reads from data can exceed len(data).
func checkBounds(data []byte) error {
	off, pending := 0, 1
	for pending > 0 {
		pending--
		if off >= len(data) {
			return errShortPacket
		}
		c := data[off]
		off++

		var (
			size  int // fixed payload bytes
			lenSz int // width of a length prefix
			extra int // bytes after the length prefix, besides the payload
			items int // child values
			pairs bool
		)
		switch {
		case msgpcode.IsFixedNum(c):
		case msgpcode.IsFixedMap(c):
			items, pairs = int(c&msgpcode.FixedMapMask), true
		case msgpcode.IsFixedArray(c):
			items = int(c & msgpcode.FixedArrayMask)
		case msgpcode.IsFixedString(c):
			size = int(c & msgpcode.FixedStrMask)
		default:
			switch c {
			case msgpcode.Nil, msgpcode.False, msgpcode.True:
			case msgpcode.Uint8, msgpcode.Int8:
				size = 1
			case msgpcode.Uint16, msgpcode.Int16:
				size = 2
			case msgpcode.Uint32, msgpcode.Int32, msgpcode.Float:
				size = 4
			case msgpcode.Uint64, msgpcode.Int64, msgpcode.Double:
				size = 8
			case msgpcode.FixExt1:
				size = 2
			case msgpcode.FixExt2:
				size = 3
			case msgpcode.FixExt4:
				size = 5
			case msgpcode.FixExt8:
				size = 9
			case msgpcode.FixExt16:
				size = 17
			case msgpcode.Bin8, msgpcode.Str8:
				lenSz = 1
			case msgpcode.Bin16, msgpcode.Str16:
				lenSz = 2
			case msgpcode.Bin32, msgpcode.Str32:
				lenSz = 4
			case msgpcode.Ext8:
				lenSz, extra = 1, 1
			case msgpcode.Ext16:
				lenSz, extra = 2, 1
			case msgpcode.Ext32:
				lenSz, extra = 4, 1
			case msgpcode.Array16:
				lenSz, items = 2, -1
			case msgpcode.Array32:
				lenSz, items = 4, -1
			case msgpcode.Map16:
				lenSz, items, pairs = 2, -1, true
			case msgpcode.Map32:
				lenSz, items, pairs = 4, -1, true
			default:
				return fmt.Errorf("reserved code 0x%02x at offset %d", c, off-1)
			}
		}

		if lenSz > 0 {
			if len(data)-off < lenSz {
				return errShortPacket
			}
			n := readLen(data[off:], lenSz)
			if n < 0 {
				return errShortPacket
			}
			off += lenSz
			if items < 0 {
				items = n
			} else {
				size = n + extra
			}
		}
		rest := len(data) - off
		if size > rest {
			return errShortPacket
		}
		off += size
		if pairs {
			if items > rest/2 {
				return errShortPacket
			}
			items *= 2
		}
		// Every outstanding value needs at least one more byte.
		if pending+items > rest-size {
			return errShortPacket
		}
		pending += items
	}
	return nil
}

func readLen(b []byte, width int) int {
	switch width {
	case 1:
		return int(b[0])
	case 2:
		return int(binary.BigEndian.Uint16(b))
	}
	return int(binary.BigEndian.Uint32(b))
}
