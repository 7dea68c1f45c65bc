// Package gmd reads and writes GMD text archives: an ordered list of
// localized text entries, each with an optional label, stored in one of the
// v1 or v2 on-disk layouts.
package gmd

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Debugf receives "[GMD]" tagged diagnostics. It is a no-op unless a caller
// installs a logger.
var Debugf = func(format string, args ...any) {}

// -------------------- enums --------------------

type Version uint32

const (
	V1 Version = 0x00010201
	V2 Version = 0x00010302
)

func (v Version) String() string {
	switch v {
	case V1:
		return "v1"
	case V2:
		return "v2"
	}
	return fmt.Sprintf("0x%08X", uint32(v))
}

func ParseVersion(s string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "v1", "1":
		return V1, nil
	case "v2", "2":
		return V2, nil
	}
	return 0, fmt.Errorf("%w: version %q", ErrNotSupported, s)
}

type Platform byte

const (
	PlatformCTR Platform = iota
	PlatformWiiU
	PlatformMobile
)

func (p Platform) String() string {
	switch p {
	case PlatformCTR:
		return "ctr"
	case PlatformWiiU:
		return "wiiu"
	case PlatformMobile:
		return "mobile"
	}
	return fmt.Sprintf("platform(%d)", byte(p))
}

func ParsePlatform(s string) (Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ctr", "3ds":
		return PlatformCTR, nil
	case "wiiu":
		return PlatformWiiU, nil
	case "mobile":
		return PlatformMobile, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s)
}

// Game selects title-specific behaviour, currently only text obfuscation.
type Game byte

const (
	GameDD Game = iota
	GameSoJ
	GameDGS1
	GameDGS2
)

func (g Game) String() string {
	switch g {
	case GameDD:
		return "dd"
	case GameSoJ:
		return "soj"
	case GameDGS1:
		return "dgs1"
	case GameDGS2:
		return "dgs2"
	}
	return fmt.Sprintf("game(%d)", byte(g))
}

func ParseGame(s string) (Game, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dd":
		return GameDD, nil
	case "soj":
		return GameSoJ, nil
	case "dgs1":
		return GameDGS1, nil
	case "dgs2":
		return GameDGS2, nil
	}
	return 0, fmt.Errorf("unknown game %q", s)
}

type Language int32

const (
	LanguageJapanese Language = iota
	LanguageEnglish
	LanguageFrench
	LanguageSpanish
	LanguageGerman
	LanguageItalian
)

var languageNames = [...]string{"japanese", "english", "french", "spanish", "german", "italian"}

func (l Language) String() string {
	if l >= 0 && int(l) < len(languageNames) {
		return languageNames[l]
	}
	return fmt.Sprintf("language(%d)", int32(l))
}

func ParseLanguage(s string) (Language, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range languageNames {
		if s == n {
			return Language(i), nil
		}
	}
	return 0, fmt.Errorf("unknown language %q", s)
}

// -------------------- model --------------------

// Archive is a decoded GMD file. The position of an entry in Entries is its
// id on disk.
type Archive struct {
	Name     string
	Language Language
	Entries  []Entry
}

// Entry is one text section. An empty Label means the entry has none.
type Entry struct {
	Label string
	Text  string
}

const placeholderPrefix = "no_name_"

func placeholderLabel(n int) string {
	return fmt.Sprintf("%s%03d", placeholderPrefix, n)
}

// IsPlaceholder reports whether label stands for "no label": either empty
// or synthesized by a decoder. The "no_name_" prefix is reserved; encoders
// reject labels that use it without being a placeholder of the form
// no_name_<digits>.
func IsPlaceholder(label string) bool {
	return label == "" || strings.HasPrefix(label, placeholderPrefix)
}

func isReservedLabel(label string) bool {
	rest, ok := strings.CutPrefix(label, placeholderPrefix)
	if !ok {
		return false
	}
	if rest == "" {
		return true
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return true
		}
	}
	return false
}

func (e Entry) HasLabel() bool { return !IsPlaceholder(e.Label) }

// LabelCount returns the number of entries that carry a real label.
func (a *Archive) LabelCount() int {
	n := 0
	for _, e := range a.Entries {
		if e.HasLabel() {
			n++
		}
	}
	return n
}

func (a *Archive) validate() error {
	if err := checkASCII("name", a.Name); err != nil {
		return err
	}
	for i, e := range a.Entries {
		if isReservedLabel(e.Label) {
			return fmt.Errorf("gmd: entry %d label %q uses the reserved prefix %q", i, e.Label, placeholderPrefix)
		}
		if e.HasLabel() {
			if err := checkASCII(fmt.Sprintf("entry %d label", i), e.Label); err != nil {
				return err
			}
		}
		if strings.IndexByte(e.Text, 0) >= 0 {
			return fmt.Errorf("gmd: entry %d text contains a null byte", i)
		}
		if !utf8.ValidString(e.Text) {
			return fmt.Errorf("gmd: entry %d text is not valid UTF-8", i)
		}
	}
	return nil
}

func checkASCII(what, s string) error {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 || s[i] >= 0x80 {
			return fmt.Errorf("gmd: %s %q must be ASCII without null bytes", what, s)
		}
	}
	return nil
}

// buildEntries pairs decoded labels with texts and synthesizes placeholder
// labels, numbered in encounter order, for the entries that have none.
func buildEntries(labels, texts []string) []Entry {
	entries := make([]Entry, len(labels))
	counter := 0
	for i := range labels {
		label := labels[i]
		if label == "" {
			label = placeholderLabel(counter)
			counter++
		}
		entries[i] = Entry{Label: label, Text: texts[i]}
	}
	return entries
}

// -------------------- header --------------------

const (
	headerSize  = 0x28
	bucketCount = 0x100
)

var magic = [4]byte{'G', 'M', 'D', 0}

type header struct {
	Magic         [4]byte
	Version       Version
	Language      Language
	Reserved      int64
	LabelCount    int32
	SectionCount  int32
	LabelBlobSize int32
	TextBlobSize  int32
	NameSize      int32
}

func readHeader(r *reader) (header, error) {
	var h header
	b, err := r.Bytes(4)
	if err != nil {
		return h, err
	}
	copy(h.Magic[:], b)
	u, err := r.U32()
	if err != nil {
		return h, err
	}
	h.Version = Version(u)
	lang, err := r.I32()
	if err != nil {
		return h, err
	}
	h.Language = Language(lang)
	if h.Reserved, err = r.I64(); err != nil {
		return h, err
	}
	for _, p := range []*int32{&h.LabelCount, &h.SectionCount, &h.LabelBlobSize, &h.TextBlobSize, &h.NameSize} {
		if *p, err = r.I32(); err != nil {
			return h, err
		}
		if *p < 0 {
			return h, structErr("read header", r.Pos()-4, "negative count or size %d", *p)
		}
	}
	if h.Reserved != 0 {
		Debugf("[GMD] reserved header field is 0x%X, expected 0\n", h.Reserved)
	}
	return h, nil
}

func writeHeader(buf *bytes.Buffer, h header) {
	buf.Write(h.Magic[:])
	writeU32ToBuf(buf, uint32(h.Version))
	writeI32ToBuf(buf, int32(h.Language))
	writeI64ToBuf(buf, h.Reserved)
	writeI32ToBuf(buf, h.LabelCount)
	writeI32ToBuf(buf, h.SectionCount)
	writeI32ToBuf(buf, h.LabelBlobSize)
	writeI32ToBuf(buf, h.TextBlobSize)
	writeI32ToBuf(buf, h.NameSize)
}

// newHeader derives every count and size from what is about to be written.
func newHeader(v Version, a *Archive, labelCount, labelBlob, textBlob int) (header, error) {
	fields := []struct {
		name string
		v    int
	}{
		{"section count", len(a.Entries)},
		{"label count", labelCount},
		{"label blob size", labelBlob},
		{"text blob size", textBlob},
		{"name size", len(a.Name)},
	}
	for _, f := range fields {
		if int64(f.v) > math.MaxInt32 {
			return header{}, structErr("encode header", 0, "%s %d overflows int32", f.name, f.v)
		}
	}
	return header{
		Magic:         magic,
		Version:       v,
		Language:      a.Language,
		LabelCount:    int32(labelCount),
		SectionCount:  int32(len(a.Entries)),
		LabelBlobSize: int32(labelBlob),
		TextBlobSize:  int32(textBlob),
		NameSize:      int32(len(a.Name)),
	}, nil
}

// readName reads the archive name that follows the header and checks it
// against the declared size.
func readName(r *reader, h header) (string, error) {
	pos := r.Pos()
	name, err := r.StringToNull()
	if err != nil {
		return "", err
	}
	if int32(len(name)) != h.NameSize {
		return "", structErr("read name", pos, "name is %d bytes, header declares %d", len(name), h.NameSize)
	}
	return name, nil
}

// -------------------- codecs --------------------

// Codec decodes and encodes one GMD format version.
type Codec interface {
	Version() Version
	Decode(data []byte) (*Archive, error)
	Encode(a *Archive, platform Platform, game Game) ([]byte, error)
}

type v1Codec struct{}

func (v1Codec) Version() Version { return V1 }

func (v1Codec) Decode(data []byte) (*Archive, error) {
	return DecodeV1(data)
}

func (v1Codec) Encode(a *Archive, platform Platform, game Game) ([]byte, error) {
	return EncodeV1(a, platform, game)
}

type v2Codec struct{}

func (v2Codec) Version() Version { return V2 }

func (v2Codec) Decode(data []byte) (*Archive, error) {
	return DecodeV2(data)
}

func (v2Codec) Encode(a *Archive, platform Platform, game Game) ([]byte, error) {
	return EncodeV2(a, platform, game)
}

// CodecFor returns the codec that handles v.
func CodecFor(v Version) (Codec, error) {
	switch v {
	case V1:
		return v1Codec{}, nil
	case V2:
		return v2Codec{}, nil
	}
	return nil, fmt.Errorf("%w: version 0x%08X", ErrNotSupported, uint32(v))
}

// Decode identifies data and decodes it with the matching codec.
func Decode(data []byte) (*Archive, Version, error) {
	v, err := IdentifyBytes(data)
	if err != nil {
		return nil, 0, err
	}
	c, err := CodecFor(v)
	if err != nil {
		return nil, 0, err
	}
	a, err := c.Decode(data)
	if err != nil {
		return nil, 0, err
	}
	return a, v, nil
}

// Encode serializes a in format version v for the given platform and title.
func Encode(a *Archive, v Version, platform Platform, game Game) ([]byte, error) {
	c, err := CodecFor(v)
	if err != nil {
		return nil, err
	}
	return c.Encode(a, platform, game)
}

// LoadFile reads the whole file at path and decodes it.
func LoadFile(path string) (*Archive, Version, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	a, v, err := Decode(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	Debugf("[GMD] loaded %s: %s name=%q entries=%d\n", path, v, a.Name, len(a.Entries))
	return a, v, nil
}

// SaveFile encodes a completely in memory and commits it to path through a
// temporary file in the same directory, so path is either left untouched or
// fully replaced.
func SaveFile(path string, a *Archive, v Version, platform Platform, game Game) error {
	data, err := Encode(a, v, platform, game)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("save %s: %w", path, err)
	}
	Debugf("[GMD] wrote %s (%d bytes)\n", path, len(data))
	return nil
}
