package gmd

import (
	"bytes"
	"encoding/binary"
)

// reader is a little-endian cursor over a fully materialized file. Every
// overrun is reported as a *StructuralError carrying the failing offset.
type reader struct {
	b   []byte
	pos int64
}

func newReader(b []byte) *reader {
	return &reader{b: b}
}

func (r *reader) Pos() int64       { return r.pos }
func (r *reader) SetPos(p int64)   { r.pos = p }
func (r *reader) Len() int64       { return int64(len(r.b)) }
func (r *reader) Remaining() int64 { return int64(len(r.b)) - r.pos }

func (r *reader) Bytes(n int64) ([]byte, error) {
	if n < 0 || r.pos < 0 || r.pos+n > int64(len(r.b)) {
		return nil, structErr("read", r.pos, "need %d bytes, %d remain", n, r.Remaining())
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) U32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

func (r *reader) I64() (int64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (r *reader) StringToNull() (string, error) {
	start := r.pos
	if start < 0 || start >= int64(len(r.b)) {
		return "", structErr("read string", start, "offset outside file")
	}
	i := bytes.IndexByte(r.b[start:], 0)
	if i < 0 {
		return "", structErr("read string", start, "missing null terminator")
	}
	r.pos = start + int64(i) + 1
	return string(r.b[start : start+int64(i)]), nil
}

// cstringAt reads a NUL-terminated string at off inside blob. base is the
// blob's file offset and only feeds error messages.
func cstringAt(blob []byte, off, base int64) (string, error) {
	if off < 0 || off >= int64(len(blob)) {
		return "", structErr("read label", base+off, "offset %d outside label blob of %d bytes", off, len(blob))
	}
	i := bytes.IndexByte(blob[off:], 0)
	if i < 0 {
		return "", structErr("read label", base+off, "label runs past end of label blob")
	}
	return string(blob[off : off+int64(i)]), nil
}

// -------------------- writer helpers --------------------

func writeU32ToBuf(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeI32ToBuf(buf *bytes.Buffer, v int32) {
	writeU32ToBuf(buf, uint32(v))
}

func writeI64ToBuf(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0)
}
