package gmd

import (
	"bytes"
	"fmt"
	"math"
)

const (
	v1RecordSize = 0x8
	// Label offsets in v1 are engine pointers: the label blob offset plus
	// v1LabelBase plus 0x80 per section.
	v1LabelBase   = 0x29080170
	v1SectionStep = 0x80
)

type v1Record struct {
	ID          int32
	LabelOffset int32
}

func v1LabelOrigin(sectionCount int) int64 {
	return v1LabelBase + int64(sectionCount)*v1SectionStep
}

// DecodeV1 decodes a legacy v1 file.
func DecodeV1(data []byte) (*Archive, error) {
	r := newReader(data)

	// Header
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if h.Version != V1 {
		return nil, fmt.Errorf("%w: version 0x%08X is not v1", ErrNotSupported, uint32(h.Version))
	}
	name, err := readName(r, h)
	if err != nil {
		return nil, err
	}

	// Entries
	n := int(h.SectionCount)
	if int64(n)*v1RecordSize > r.Remaining() {
		return nil, structErr("read entries", r.Pos(), "%d entries do not fit in %d bytes", n, r.Remaining())
	}
	records := make([]v1Record, n)
	for i := range records {
		if records[i].ID, err = r.I32(); err != nil {
			return nil, err
		}
		if records[i].LabelOffset, err = r.I32(); err != nil {
			return nil, err
		}
	}

	// Labels
	labelStart := r.Pos()
	labelBlob, err := r.Bytes(int64(h.LabelBlobSize))
	if err != nil {
		return nil, err
	}
	origin := v1LabelOrigin(n)
	labels := make([]string, n)
	for i, rec := range records {
		off := int64(rec.LabelOffset) - origin
		if off < 0 {
			continue
		}
		if labels[i], err = cstringAt(labelBlob, off, labelStart); err != nil {
			return nil, err
		}
	}

	// Text
	textStart := int64(headerSize) + int64(h.NameSize) + 1 + int64(n)*v1RecordSize + int64(h.LabelBlobSize)
	r.SetPos(textStart)
	raw, err := r.Bytes(int64(h.TextBlobSize))
	if err != nil {
		return nil, err
	}
	texts, err := readTextBlob(raw, n, n, textStart, false)
	if err != nil {
		return nil, err
	}

	Debugf("[GMD] v1 name=%q sections=%d labels=%d text=%d\n", name, n, h.LabelCount, h.TextBlobSize)
	return &Archive{
		Name:     name,
		Language: h.Language,
		Entries:  buildEntries(labels, texts),
	}, nil
}

// EncodeV1 serializes a in the v1 layout. Every entry's text is written,
// labeled or not. Only CTR builds of DD obfuscate the text blob.
func EncodeV1(a *Archive, platform Platform, game Game) ([]byte, error) {
	if err := a.validate(); err != nil {
		return nil, err
	}

	// Text Sections
	textBlob := joinSections(a.Entries, nil)
	if platform == PlatformCTR && game == GameDD {
		var err error
		if textBlob, err = ReXOR(textBlob, 0); err != nil {
			return nil, err
		}
	}

	// Labels
	labelBlob, offsets := joinLabels(a.Entries)

	// Entries
	origin := v1LabelOrigin(len(a.Entries))
	records := make([]v1Record, len(a.Entries))
	labelCount := 0
	for i, off := range offsets {
		records[i] = v1Record{ID: int32(i), LabelOffset: -1}
		if off < 0 {
			continue
		}
		ptr := origin + off
		if ptr > math.MaxInt32 {
			return nil, structErr("encode label", off, "label pointer 0x%X overflows int32", ptr)
		}
		records[i].LabelOffset = int32(ptr)
		labelCount++
	}

	h, err := newHeader(V1, a, labelCount, len(labelBlob), len(textBlob))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(headerSize + len(a.Name) + 1 + len(records)*v1RecordSize + len(labelBlob) + len(textBlob))
	writeHeader(&buf, h)
	writeCString(&buf, a.Name)
	for _, rec := range records {
		writeI32ToBuf(&buf, rec.ID)
		writeI32ToBuf(&buf, rec.LabelOffset)
	}
	buf.Write(labelBlob)
	buf.Write(textBlob)
	return buf.Bytes(), nil
}
