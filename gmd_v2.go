package gmd

import (
	"bytes"
	"fmt"
	"hash/crc32"
	"math"
	"strings"
)

func (l Layout) recordSize() int64 {
	if l == LayoutMobile {
		return 0x20
	}
	return 0x14
}

func (l Layout) slotSize() int64 {
	if l == LayoutMobile {
		return 0x8
	}
	return 0x4
}

// labelRecord is one entry of the v2 label index. Link holds the id of the
// next label in the same hash bucket, 0 at the end of the chain.
type labelRecord struct {
	ID          int32
	Hash1       uint32
	Hash2       uint32
	LabelOffset int64
	Link        int64
}

// labelIndex is the in-memory form of the v2 label index and bucket table.
type labelIndex struct {
	records []labelRecord
	buckets [bucketCount]int64
}

func labelHash(label string, repeat int) uint32 {
	return ^crc32.ChecksumIEEE([]byte(strings.Repeat(label, repeat)))
}

func labelBucket(label string) byte {
	return byte(^crc32.ChecksumIEEE([]byte(label)) & 0xFF)
}

// buildLabelIndex hashes every labeled entry into one of 256 buckets. Entries
// sharing a bucket are chained in entry order through Link, and each bucket
// slot holds the id of its first entry. Slot value 0 means "empty", so a
// chain starting at id 0 is stored as -1.
func buildLabelIndex(entries []Entry) labelIndex {
	var (
		idx   labelIndex
		seen  [bucketCount]bool
		heads [bucketCount]int64
		tails [bucketCount]int
	)
	var offset int64
	for i, e := range entries {
		if !e.HasLabel() {
			continue
		}
		idx.records = append(idx.records, labelRecord{
			ID:          int32(i),
			Hash1:       labelHash(e.Label, 2),
			Hash2:       labelHash(e.Label, 3),
			LabelOffset: offset,
		})
		offset += int64(len(e.Label)) + 1

		pos := len(idx.records) - 1
		b := labelBucket(e.Label)
		if seen[b] {
			idx.records[tails[b]].Link = int64(i)
		} else {
			seen[b] = true
			heads[b] = int64(i)
		}
		tails[b] = pos
	}

	for b := range heads {
		if !seen[b] {
			continue
		}
		if heads[b] == 0 {
			idx.buckets[b] = -1
		} else {
			idx.buckets[b] = heads[b]
		}
	}
	return idx
}

// v2Size is the total file size h describes under layout l.
func v2Size(h header, l Layout) int64 {
	size := int64(headerSize) + int64(h.NameSize) + 1 +
		int64(h.LabelCount)*l.recordSize() +
		int64(h.LabelBlobSize) + int64(h.TextBlobSize)
	if h.LabelCount > 0 {
		size += bucketCount * l.slotSize()
	}
	return size
}

// probeLayout tells CTR and Mobile files apart. The file size is the only
// discriminator: CTR is assumed when the CTR formula matches exactly.
func probeLayout(h header, fileSize int64) (Layout, error) {
	ctr := v2Size(h, LayoutCTR)
	if ctr == fileSize {
		return LayoutCTR, nil
	}
	mobile := v2Size(h, LayoutMobile)
	if mobile == fileSize {
		return LayoutMobile, nil
	}
	return LayoutNone, structErr("probe layout", fileSize,
		"file size %d matches neither ctr (%d) nor mobile (%d) layout", fileSize, ctr, mobile)
}

func readLabelRecord(r *reader, l Layout) (labelRecord, error) {
	var rec labelRecord
	var err error
	if rec.ID, err = r.I32(); err != nil {
		return rec, err
	}
	if rec.Hash1, err = r.U32(); err != nil {
		return rec, err
	}
	if rec.Hash2, err = r.U32(); err != nil {
		return rec, err
	}
	if l == LayoutMobile {
		if _, err = r.I32(); err != nil {
			return rec, err
		}
		if rec.LabelOffset, err = r.I64(); err != nil {
			return rec, err
		}
		rec.Link, err = r.I64()
		return rec, err
	}
	off, err := r.I32()
	if err != nil {
		return rec, err
	}
	rec.LabelOffset = int64(off)
	link, err := r.I32()
	rec.Link = int64(link)
	return rec, err
}

func writeLabelRecord(buf *bytes.Buffer, rec labelRecord, l Layout) {
	writeI32ToBuf(buf, rec.ID)
	writeU32ToBuf(buf, rec.Hash1)
	writeU32ToBuf(buf, rec.Hash2)
	if l == LayoutMobile {
		writeI32ToBuf(buf, 0)
		writeI64ToBuf(buf, rec.LabelOffset)
		writeI64ToBuf(buf, rec.Link)
		return
	}
	writeI32ToBuf(buf, int32(rec.LabelOffset))
	writeI32ToBuf(buf, int32(rec.Link))
}

func readBuckets(r *reader, l Layout) ([bucketCount]int64, error) {
	var buckets [bucketCount]int64
	for i := range buckets {
		if l == LayoutMobile {
			v, err := r.I64()
			if err != nil {
				return buckets, err
			}
			buckets[i] = v
			continue
		}
		v, err := r.I32()
		if err != nil {
			return buckets, err
		}
		buckets[i] = int64(v)
	}
	return buckets, nil
}

// DecodeV2 decodes a hash-indexed v2 file in either physical layout.
func DecodeV2(data []byte) (*Archive, error) {
	r := newReader(data)

	// Header
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if h.Version != V2 {
		return nil, fmt.Errorf("%w: version 0x%08X is not v2", ErrNotSupported, uint32(h.Version))
	}
	name, err := readName(r, h)
	if err != nil {
		return nil, err
	}

	// Check for platform difference
	layout, err := probeLayout(h, r.Len())
	if err != nil {
		return nil, err
	}
	Debugf("[GMD] v2 layout=%s size=%d\n", layout, r.Len())

	// Label index
	records := make([]labelRecord, h.LabelCount)
	for i := range records {
		if records[i], err = readLabelRecord(r, layout); err != nil {
			return nil, err
		}
	}

	// Bucket list
	if h.LabelCount > 0 {
		if _, err := readBuckets(r, layout); err != nil {
			return nil, err
		}
	}

	// Labels
	n := int(h.SectionCount)
	labelStart := r.Pos()
	labelBlob, err := r.Bytes(int64(h.LabelBlobSize))
	if err != nil {
		return nil, err
	}
	labels := make([]string, n)
	for i, rec := range records {
		if rec.ID < 0 || int(rec.ID) >= n {
			return nil, structErr("read label index", labelStart-int64(len(records)-i)*layout.recordSize(),
				"record %d refers to entry %d of %d", i, rec.ID, n)
		}
		if rec.LabelOffset < 0 {
			continue
		}
		if labels[rec.ID], err = cstringAt(labelBlob, rec.LabelOffset, labelStart); err != nil {
			return nil, err
		}
	}

	// Text
	textStart := r.Pos()
	raw, err := r.Bytes(int64(h.TextBlobSize))
	if err != nil {
		return nil, err
	}
	// Only labeled entries carry text.
	texts, err := readTextBlob(raw, int(h.LabelCount), n, textStart, true)
	if err != nil {
		return nil, err
	}

	return &Archive{
		Name:     name,
		Language: h.Language,
		Entries:  buildEntries(labels, texts),
	}, nil
}

// EncodeV2 serializes a in the v2 layout for platform: 32-bit CTR records
// or 64-bit Mobile records. Only labeled entries contribute text. Only CTR
// builds of DGS2 obfuscate the text blob.
func EncodeV2(a *Archive, platform Platform, game Game) ([]byte, error) {
	var layout Layout
	switch platform {
	case PlatformCTR:
		layout = LayoutCTR
	case PlatformMobile:
		layout = LayoutMobile
	default:
		return nil, fmt.Errorf("%w: no v2 layout for %s", ErrUnsupportedPlatform, platform)
	}
	if err := a.validate(); err != nil {
		return nil, err
	}

	// Text Blob
	textBlob := joinSections(a.Entries, Entry.HasLabel)
	if platform == PlatformCTR && game == GameDGS2 {
		var err error
		if textBlob, err = ReXOR(textBlob, 1); err != nil {
			return nil, err
		}
	}

	// Label Blob
	labelBlob, _ := joinLabels(a.Entries)
	if layout == LayoutCTR && int64(len(labelBlob)) > math.MaxInt32 {
		return nil, structErr("encode labels", 0, "label blob of %d bytes overflows ctr offsets", len(labelBlob))
	}

	idx := buildLabelIndex(a.Entries)
	h, err := newHeader(V2, a, len(idx.records), len(labelBlob), len(textBlob))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(int(v2Size(h, layout)))
	writeHeader(&buf, h)
	writeCString(&buf, a.Name)
	for _, rec := range idx.records {
		writeLabelRecord(&buf, rec, layout)
	}
	if len(idx.records) > 0 {
		for _, slot := range idx.buckets {
			if layout == LayoutMobile {
				writeI64ToBuf(&buf, slot)
			} else {
				writeI32ToBuf(&buf, int32(slot))
			}
		}
	}
	buf.Write(labelBlob)
	buf.Write(textBlob)

	Debugf("[GMD] v2 %s: %d entries, %d labels, %d text bytes\n", layout, len(a.Entries), len(idx.records), len(textBlob))
	return buf.Bytes(), nil
}
