package gmd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
)

func v2Sample() *Archive {
	return &Archive{
		Name:     "msg_main",
		Language: LanguageFrench,
		Entries: []Entry{
			{Label: "TITLE", Text: "Hello\r\nWorld"},
			{Label: "BODY", Text: "Second line"},
			{Label: "FOOTER", Text: ""},
			{Label: "FAREWELL", Text: "Mehr Text äöü"},
		},
	}
}

func TestV2RoundTrip(t *testing.T) {
	targets := []struct {
		platform Platform
		game     Game
		layout   Layout
		size     int
	}{
		{PlatformCTR, GameDD, LayoutCTR, 1223},
		{PlatformCTR, GameDGS2, LayoutCTR, 1223},
		{PlatformMobile, GameDD, LayoutMobile, 2295},
		{PlatformMobile, GameDGS2, LayoutMobile, 2295},
	}
	for _, tt := range targets {
		t.Run(tt.platform.String()+"/"+tt.game.String(), func(t *testing.T) {
			data, err := EncodeV2(v2Sample(), tt.platform, tt.game)
			if err != nil {
				t.Fatal(err)
			}
			if len(data) != tt.size {
				t.Errorf("size = %d, want %d", len(data), tt.size)
			}
			info, err := Sniff(data)
			if err != nil {
				t.Fatal(err)
			}
			if info.Layout != tt.layout {
				t.Errorf("layout = %s, want %s", info.Layout, tt.layout)
			}
			got, err := DecodeV2(data)
			if err != nil {
				t.Fatal(err)
			}
			if want := v2Sample(); !reflect.DeepEqual(got, want) {
				t.Errorf("round trip = %+v\nwant %+v", got, want)
			}
		})
	}
}

func TestEncodeV2PlaceholderOnly(t *testing.T) {
	a := &Archive{Name: "x", Entries: []Entry{{Text: "A"}}}
	data, err := EncodeV2(a, PlatformCTR, GameDD)
	if err != nil {
		t.Fatal(err)
	}
	le := binary.LittleEndian
	if got := le.Uint32(data[0x20:]); got != 0 {
		t.Errorf("textBlobSize = %d, want 0", got)
	}
	if got := le.Uint32(data[0x14:]); got != 0 {
		t.Errorf("labelCount = %d, want 0", got)
	}
	if got := le.Uint32(data[0x18:]); got != 1 {
		t.Errorf("sectionCount = %d, want 1", got)
	}
	// No index and no bucket table without labels.
	if len(data) != headerSize+2 {
		t.Errorf("size = %d, want %d", len(data), headerSize+2)
	}

	got, err := DecodeV2(data)
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{{Label: "no_name_000", Text: ""}}
	if !reflect.DeepEqual(got.Entries, want) {
		t.Errorf("entries = %+v, want %+v", got.Entries, want)
	}
}

func TestEncodeV2SkipsUnlabeledText(t *testing.T) {
	a := &Archive{Name: "x", Entries: []Entry{
		{Label: "A", Text: "a"},
		{Text: "b"},
		{Label: "C", Text: "c"},
	}}
	data, err := EncodeV2(a, PlatformMobile, GameDD)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasSuffix(data, []byte("A\x00C\x00a\x00c\x00")) {
		t.Errorf("unexpected label/text blobs: %q", data[len(data)-8:])
	}

	// Text runs are assigned to sections in order, so the unlabeled entry
	// picks up the next labeled entry's text.
	got, err := DecodeV2(data)
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{
		{Label: "A", Text: "a"},
		{Label: "no_name_000", Text: "c"},
		{Label: "C", Text: ""},
	}
	if !reflect.DeepEqual(got.Entries, want) {
		t.Errorf("entries = %+v, want %+v", got.Entries, want)
	}
}

func TestLabelHashes(t *testing.T) {
	if got := labelHash("GREETING", 2); got != 0xCE6EACE8 {
		t.Errorf("hash1 = %#x, want 0xce6eace8", got)
	}
	if got := labelHash("GREETING", 3); got != 0x511758D0 {
		t.Errorf("hash2 = %#x, want 0x511758d0", got)
	}
	if got := labelBucket("GREETING"); got != 24 {
		t.Errorf("bucket = %d, want 24", got)
	}
}

func TestBuildLabelIndexChains(t *testing.T) {
	// LBL_024, LBL_189 and LBL_278 all hash to bucket 3; TITLE to 36.
	entries := []Entry{
		{Label: "LBL_024"},
		{Label: "TITLE"},
		{Label: "LBL_189"},
		{Label: ""},
		{Label: "LBL_278"},
	}
	idx := buildLabelIndex(entries)

	wantIDs := []int32{0, 1, 2, 4}
	wantLinks := []int64{2, 0, 4, 0}
	wantOffsets := []int64{0, 8, 14, 22}
	if len(idx.records) != len(wantIDs) {
		t.Fatalf("records = %d, want %d", len(idx.records), len(wantIDs))
	}
	for i, rec := range idx.records {
		if rec.ID != wantIDs[i] || rec.Link != wantLinks[i] || rec.LabelOffset != wantOffsets[i] {
			t.Errorf("record %d = {id %d link %d off %d}, want {id %d link %d off %d}",
				i, rec.ID, rec.Link, rec.LabelOffset, wantIDs[i], wantLinks[i], wantOffsets[i])
		}
	}

	if idx.buckets[3] != -1 {
		t.Errorf("bucket 3 = %d, want -1 (chain head is id 0)", idx.buckets[3])
	}
	if idx.buckets[36] != 1 {
		t.Errorf("bucket 36 = %d, want 1", idx.buckets[36])
	}
	used := 0
	for _, slot := range idx.buckets {
		if slot != 0 {
			used++
		}
	}
	if used != 2 {
		t.Errorf("non-empty buckets = %d, want 2", used)
	}
}

func TestEncodeV2BucketTable(t *testing.T) {
	data, err := EncodeV2(v2Sample(), PlatformCTR, GameDD)
	if err != nil {
		t.Fatal(err)
	}
	le := binary.LittleEndian
	table := headerSize + len("msg_main") + 1 + 4*0x14
	slot := func(b int) int32 { return int32(le.Uint32(data[table+b*4:])) }

	// TITLE=36, BODY=249, FOOTER=42, FAREWELL=118.
	want := map[int]int32{36: -1, 249: 1, 42: 2, 118: 3, 0: 0, 255: 0}
	for b, w := range want {
		if got := slot(b); got != w {
			t.Errorf("ctr bucket %d = %d, want %d", b, got, w)
		}
	}

	mobile, err := EncodeV2(v2Sample(), PlatformMobile, GameDD)
	if err != nil {
		t.Fatal(err)
	}
	table = headerSize + len("msg_main") + 1 + 4*0x20
	if got := int64(le.Uint64(mobile[table+36*8:])); got != -1 {
		t.Errorf("mobile bucket 36 = %d, want -1", got)
	}
	if got := int64(le.Uint64(mobile[table+249*8:])); got != 1 {
		t.Errorf("mobile bucket 249 = %d, want 1", got)
	}
}

func TestEncodeV2MobileRecords(t *testing.T) {
	data, err := EncodeV2(v2Sample(), PlatformMobile, GameDD)
	if err != nil {
		t.Fatal(err)
	}
	le := binary.LittleEndian
	base := headerSize + len("msg_main") + 1
	wantOffsets := []uint64{0, 6, 11, 18}
	for i, want := range wantOffsets {
		rec := data[base+i*0x20:]
		if id := le.Uint32(rec); id != uint32(i) {
			t.Errorf("record %d id = %d", i, id)
		}
		if pad := le.Uint32(rec[12:]); pad != 0 {
			t.Errorf("record %d padding = %#x", i, pad)
		}
		if off := le.Uint64(rec[16:]); off != want {
			t.Errorf("record %d offset = %d, want %d", i, off, want)
		}
	}
	if got := le.Uint32(data[base+4:]); got != labelHash("TITLE", 2) {
		t.Errorf("record 0 hash1 = %#x", got)
	}
}

func TestEncodeV2Obfuscation(t *testing.T) {
	plain, err := EncodeV2(v2Sample(), PlatformCTR, GameDD)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := EncodeV2(v2Sample(), PlatformCTR, GameDGS2)
	if err != nil {
		t.Fatal(err)
	}
	textSize := int(binary.LittleEndian.Uint32(plain[0x20:]))
	start := len(plain) - textSize
	if !bytes.Equal(plain[:start], enc[:start]) {
		t.Error("obfuscation touched bytes outside the text blob")
	}
	if want := mustReXOR(t, plain[start:], 1); !bytes.Equal(enc[start:], want) {
		t.Error("ctr/dgs2 text blob is not keypair 1 output")
	}

	mobile, err := EncodeV2(v2Sample(), PlatformMobile, GameDGS2)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasSuffix(mobile, plain[start:]) {
		t.Error("mobile/dgs2 text blob should stay plain")
	}
}

func TestEncodeV2WiiU(t *testing.T) {
	_, err := EncodeV2(v2Sample(), PlatformWiiU, GameDD)
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Errorf("err = %v, want ErrUnsupportedPlatform", err)
	}
}

func TestProbeLayout(t *testing.T) {
	h := header{NameSize: 1, LabelCount: 2, SectionCount: 2, LabelBlobSize: 4, TextBlobSize: 4}
	ctr := int64(headerSize + 2 + 2*0x14 + 0x400 + 8)
	mobile := int64(headerSize + 2 + 2*0x20 + 0x800 + 8)

	if l, err := probeLayout(h, ctr); err != nil || l != LayoutCTR {
		t.Errorf("probe(%d) = %s, %v; want ctr", ctr, l, err)
	}
	if l, err := probeLayout(h, mobile); err != nil || l != LayoutMobile {
		t.Errorf("probe(%d) = %s, %v; want mobile", mobile, l, err)
	}
	if _, err := probeLayout(h, ctr+1); !errors.Is(err, ErrStructure) {
		t.Errorf("probe(%d) err = %v, want ErrStructure", ctr+1, err)
	}

	// Without labels both formulas agree and CTR wins.
	h = header{NameSize: 1, SectionCount: 1}
	if l, err := probeLayout(h, headerSize+2); err != nil || l != LayoutCTR {
		t.Errorf("probe without labels = %s, %v; want ctr", l, err)
	}
}

func TestDecodeV2Structural(t *testing.T) {
	good, err := EncodeV2(v2Sample(), PlatformCTR, GameDD)
	if err != nil {
		t.Fatal(err)
	}
	base := headerSize + len("msg_main") + 1

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"extra byte", func(b []byte) []byte { return append(b, 0) }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-1] }},
		{"record id out of range", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[base:], 10)
			return b
		}},
		{"label offset past blob", func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[base+12:], 1000)
			return b
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeV2(tt.mutate(bytes.Clone(good)))
			if !errors.Is(err, ErrStructure) {
				t.Errorf("err = %v, want ErrStructure", err)
			}
		})
	}
}

func TestDecodeV2UnindexedEntries(t *testing.T) {
	// Only the record for entry 1 keeps its label; entries 0 and 2 lose
	// theirs and get placeholders numbered in entry order.
	a := &Archive{Name: "x", Entries: []Entry{
		{Label: "A", Text: "a"},
		{Label: "B", Text: "b"},
		{Label: "C", Text: "c"},
	}}
	data, err := EncodeV2(a, PlatformCTR, GameDD)
	if err != nil {
		t.Fatal(err)
	}
	base := headerSize + len("x") + 1
	le := binary.LittleEndian
	le.PutUint32(data[base+12:], 0xFFFFFFFF)
	le.PutUint32(data[base+2*0x14+12:], 0xFFFFFFFF)

	got, err := DecodeV2(data)
	if err != nil {
		t.Fatal(err)
	}
	want := []Entry{
		{Label: "no_name_000", Text: "a"},
		{Label: "B", Text: "b"},
		{Label: "no_name_001", Text: "c"},
	}
	if !reflect.DeepEqual(got.Entries, want) {
		t.Errorf("entries = %+v, want %+v", got.Entries, want)
	}
}
