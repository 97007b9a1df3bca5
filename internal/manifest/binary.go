package manifest

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/rodb/internal/hash"
)

const (
	binaryMagic   = 0x524F4442 // "RODB"
	binaryVersion = CurrentVersion
	headerSize    = 16
)

// WriteBinary writes the manifest in binary format.
// Format:
// Magic (4 bytes)
// Version (4 bytes)
// Checksum (4 bytes) - CRC32-C of payload
// PayloadLength (4 bytes)
// Payload:
//
//	CreatedAt (8 bytes) - UnixNano
//	UpdatedAt (8 bytes) - UnixNano
//	PageSize (8 bytes)
//	Codec (string)
//	NumResources (4 bytes)
//	Resources...
//	  Name (string)
//	  TypeID (8 bytes)
//	  Fingerprint (4 bytes)
//	  ElementCount (8 bytes)
//	  ByteCount (8 bytes)
//	  JoinCount (8 bytes)
//	  PolyJoinCount (8 bytes)
func (m *Manifest) WriteBinary(w io.Writer) error {
	pb := newPayloadBuffer(make([]byte, 0, 32+len(m.Codec)+len(m.Resources)*72))

	pb.writeUint64(uint64(m.CreatedAt.UnixNano()))
	pb.writeUint64(uint64(m.UpdatedAt.UnixNano()))
	pb.writeUint64(uint64(m.PageSize))
	pb.writeString(m.Codec)
	pb.writeUint32(uint32(len(m.Resources)))

	for _, r := range m.Resources {
		pb.writeString(r.Name)
		pb.writeUint64(r.TypeID)
		pb.writeUint32(r.Fingerprint)
		pb.writeUint64(r.ElementCount)
		pb.writeUint64(r.ByteCount)
		pb.writeUint64(r.JoinCount)
		pb.writeUint64(r.PolyJoinCount)
	}

	if pb.err != nil {
		return pb.err
	}

	payload := pb.buf
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], binaryMagic)
	binary.LittleEndian.PutUint32(header[4:8], binaryVersion)
	binary.LittleEndian.PutUint32(header[8:12], hash.CRC32C(payload))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadBinary reads the manifest from binary format.
func ReadBinary(r io.Reader) (*Manifest, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	magic := binary.LittleEndian.Uint32(header[0:4])
	if magic != binaryMagic {
		return nil, fmt.Errorf("invalid magic: %x", magic)
	}
	version := binary.LittleEndian.Uint32(header[4:8])
	if version != binaryVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, version)
	}
	checksum := binary.LittleEndian.Uint32(header[8:12])
	length := binary.LittleEndian.Uint32(header[12:16])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	if hash.CRC32C(payload) != checksum {
		return nil, fmt.Errorf("checksum mismatch")
	}

	pb := newPayloadBuffer(payload)
	m := &Manifest{Version: int(version)}
	m.CreatedAt = time.Unix(0, int64(pb.readUint64()))
	m.UpdatedAt = time.Unix(0, int64(pb.readUint64()))
	m.PageSize = int(pb.readUint64())
	m.Codec = pb.readString()

	n := pb.readUint32()
	if pb.err == nil && uint64(n) > uint64(len(payload)) {
		return nil, fmt.Errorf("resource count %d exceeds payload", n)
	}
	m.Resources = make([]ResourceInfo, 0, n)
	for i := uint32(0); i < n && pb.err == nil; i++ {
		var ri ResourceInfo
		ri.Name = pb.readString()
		ri.TypeID = pb.readUint64()
		ri.Fingerprint = pb.readUint32()
		ri.ElementCount = pb.readUint64()
		ri.ByteCount = pb.readUint64()
		ri.JoinCount = pb.readUint64()
		ri.PolyJoinCount = pb.readUint64()
		m.Resources = append(m.Resources, ri)
	}

	if pb.err != nil {
		return nil, pb.err
	}
	return m, nil
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > 65535 {
		p.err = fmt.Errorf("string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) readUint64() uint64 {
	if p.err != nil {
		return 0
	}
	if p.pos+8 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readUint32() uint32 {
	if p.err != nil {
		return 0
	}
	if p.pos+4 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readString() string {
	if p.err != nil {
		return ""
	}
	if p.pos+2 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return ""
	}
	l := binary.LittleEndian.Uint16(p.buf[p.pos:])
	p.pos += 2

	if p.pos+int(l) > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return ""
	}
	s := string(p.buf[p.pos : p.pos+int(l)])
	p.pos += int(l)
	return s
}
