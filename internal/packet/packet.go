// Package packet defines the wire format shared by the sender and receiver:
// a fixed header plus a bounded payload, sent one per datagram.
package packet

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Flags is a bitfield; a packet may combine several.
type Flags uint8

const (
	FlagNone  Flags = 0
	FlagReq   Flags = 0x01
	FlagFile  Flags = 0x02
	FlagCheck Flags = 0x04
	FlagFin   Flags = 0x08
	FlagPos   Flags = 0x10
	FlagNeg   Flags = 0x20
)

// Has reports whether all bits in want are set in f.
func (f Flags) Has(want Flags) bool {
	return f&want == want
}

func (f Flags) String() string {
	if f == FlagNone {
		return "NONE"
	}
	var parts []string
	for _, pair := range []struct {
		flag Flags
		name string
	}{
		{FlagReq, "REQ"}, {FlagFile, "FILE"}, {FlagCheck, "CHECK"},
		{FlagFin, "FIN"}, {FlagPos, "POS"}, {FlagNeg, "NEG"},
	} {
		if f.Has(pair.flag) {
			parts = append(parts, pair.name)
		}
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += "|" + p
	}
	return out
}

// Wire-format constants. HDR_LEN is fixed by the field layout below and must
// not drift even if the Go struct's in-memory layout would otherwise pad.
const (
	NullFileID int32 = 0
	NullSeqNo  int32 = 0

	HdrLen      = 4 + 1 + 4 + 2 // fileid + flags + seqno + datalen
	MaxWriteLen = 491
	MaxDataLen  = MaxWriteLen + 1 // +1 reserved for the guarantee byte
	MaxPcktLen  = HdrLen + MaxWriteLen
)

var byteOrder = binary.LittleEndian

// Packet is a value type: copying it copies the payload along with it.
type Packet struct {
	FileID  int32
	Flags   Flags
	SeqNo   int32
	DataLen uint16
	Data    []byte // len(Data) == DataLen
}

// New builds a packet, silently clamping data to MaxWriteLen as the encoder
// would anyway.
func New(fileID int32, flags Flags, seqNo int32, data []byte) Packet {
	if len(data) > MaxWriteLen {
		data = data[:MaxWriteLen]
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return Packet{FileID: fileID, Flags: flags, SeqNo: seqNo, DataLen: uint16(len(buf)), Data: buf}
}

// Error is the canonical "no" response: NEG alone, all identity fields zero.
func Error() Packet {
	return Packet{FileID: NullFileID, Flags: FlagNeg, SeqNo: NullSeqNo, DataLen: 0, Data: nil}
}

// IsError reports whether p is the canonical error packet.
func (p Packet) IsError() bool {
	return p.Flags == FlagNeg && p.FileID == NullFileID && p.SeqNo == NullSeqNo && p.DataLen == 0
}

// Encode writes exactly HdrLen+DataLen bytes in the fixed wire layout.
func (p Packet) Encode() []byte {
	datalen := p.DataLen
	if int(datalen) > MaxWriteLen {
		datalen = MaxWriteLen
	}
	out := make([]byte, HdrLen+int(datalen))
	byteOrder.PutUint32(out[0:4], uint32(p.FileID))
	out[4] = byte(p.Flags)
	byteOrder.PutUint32(out[5:9], uint32(p.SeqNo))
	byteOrder.PutUint16(out[9:11], datalen)
	copy(out[HdrLen:], p.Data[:datalen])
	return out
}

// Decode parses a received datagram. Per spec, the payload is always
// materialized with a trailing zero byte past DataLen so that embedded
// C-style strings (filenames) remain safely readable.
func Decode(raw []byte) (Packet, error) {
	if len(raw) < HdrLen {
		return Packet{}, fmt.Errorf("packet: short read, got %d bytes, want at least %d", len(raw), HdrLen)
	}
	fileID := int32(byteOrder.Uint32(raw[0:4]))
	flags := Flags(raw[4])
	seqNo := int32(byteOrder.Uint32(raw[5:9]))
	datalen := byteOrder.Uint16(raw[9:11])

	payload := raw[HdrLen:]
	if int(datalen) > len(payload) {
		return Packet{}, fmt.Errorf("packet: datalen %d exceeds received payload %d", datalen, len(payload))
	}
	if int(datalen) > MaxWriteLen {
		return Packet{}, fmt.Errorf("packet: datalen %d exceeds MaxWriteLen %d", datalen, MaxWriteLen)
	}

	// +1 for the guarantee byte; it is zero because make() zeroes memory.
	data := make([]byte, int(datalen)+1)
	copy(data, payload[:datalen])
	data = data[:datalen]

	return Packet{FileID: fileID, Flags: flags, SeqNo: seqNo, DataLen: datalen, Data: data}, nil
}

// NulTerminated returns the payload with one extra zero byte appended,
// safe to interpret as a C-style string (e.g. a filename).
func (p Packet) NulTerminated() []byte {
	out := make([]byte, len(p.Data)+1)
	copy(out, p.Data)
	return out
}

// Equal compares all five fields; payload comparison only considers the
// first DataLen bytes, so trailing unused capacity never affects equality.
func (p Packet) Equal(o Packet) bool {
	return p.FileID == o.FileID &&
		p.Flags == o.Flags &&
		p.SeqNo == o.SeqNo &&
		p.DataLen == o.DataLen &&
		bytes.Equal(p.Data[:p.DataLen], o.Data[:o.DataLen])
}

// Compare defines a total order over packets for use as a map/set key:
// lexicographic over (fileid, seqno, datalen, payload prefix, flags).
func Compare(a, b Packet) int {
	if a.FileID != b.FileID {
		if a.FileID < b.FileID {
			return -1
		}
		return 1
	}
	if a.SeqNo != b.SeqNo {
		if a.SeqNo < b.SeqNo {
			return -1
		}
		return 1
	}
	if a.DataLen != b.DataLen {
		if a.DataLen < b.DataLen {
			return -1
		}
		return 1
	}
	if c := bytes.Compare(a.Data[:a.DataLen], b.Data[:b.DataLen]); c != 0 {
		return c
	}
	if a.Flags != b.Flags {
		if a.Flags < b.Flags {
			return -1
		}
		return 1
	}
	return 0
}

// Key returns a byte-exact encoding suitable for use as a map key. Two
// FILE packets with the same (fileid, seqno) but different payload bytes
// must not alias, which is why this is the full encoding and not just the
// header fields.
func (p Packet) Key() string {
	return string(p.Encode())
}
