// Package dump exports archives as editable translation documents and
// imports them back.
package dump

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"gmd"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCBOR Format = "cbor"
)

type Compression string

const (
	CompressionNone Compression = "none"
	CompressionLz4  Compression = "lz4"
	CompressionZstd Compression = "zstd"
)

var (
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatCBOR:
		return f, nil
	}
	return "", fmt.Errorf("unknown dump format %q", s)
}

func ParseCompression(s string) (Compression, error) {
	switch c := Compression(strings.ToLower(s)); c {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionLz4, CompressionZstd:
		return c, nil
	}
	return "", fmt.Errorf("unknown dump compression %q", s)
}

type Options struct {
	Format      Format
	Compression Compression
}

// Document is the exported form of an archive. Unlabeled entries carry an
// empty label.
type Document struct {
	Name     string   `json:"name" cbor:"name"`
	Language string   `json:"language" cbor:"language"`
	Version  string   `json:"version" cbor:"version"`
	Entries  []Record `json:"entries" cbor:"entries"`
}

type Record struct {
	ID    int    `json:"id" cbor:"id"`
	Label string `json:"label,omitempty" cbor:"label,omitempty"`
	Text  string `json:"text" cbor:"text"`
}

func FromArchive(a *gmd.Archive, v gmd.Version) *Document {
	doc := &Document{
		Name:     a.Name,
		Language: a.Language.String(),
		Version:  v.String(),
		Entries:  make([]Record, len(a.Entries)),
	}
	for i, e := range a.Entries {
		rec := Record{ID: i, Text: e.Text}
		if e.HasLabel() {
			rec.Label = e.Label
		}
		doc.Entries[i] = rec
	}
	return doc
}

// ToArchive rebuilds the archive. Records must be listed in id order
// starting at 0.
func (d *Document) ToArchive() (*gmd.Archive, gmd.Version, error) {
	v, err := gmd.ParseVersion(d.Version)
	if err != nil {
		return nil, 0, err
	}
	lang, err := gmd.ParseLanguage(d.Language)
	if err != nil {
		return nil, 0, err
	}
	a := &gmd.Archive{
		Name:     d.Name,
		Language: lang,
		Entries:  make([]gmd.Entry, len(d.Entries)),
	}
	for i, rec := range d.Entries {
		if rec.ID != i {
			return nil, 0, fmt.Errorf("record %d has id %d, ids must be sequential", i, rec.ID)
		}
		a.Entries[i] = gmd.Entry{Label: rec.Label, Text: rec.Text}
	}
	return a, v, nil
}

// Export writes a as a document in the requested format and compression.
func Export(w io.Writer, a *gmd.Archive, v gmd.Version, opts Options) error {
	doc := FromArchive(a, v)

	var payload []byte
	var err error
	switch opts.Format {
	case FormatJSON, "":
		payload, err = json.MarshalIndent(doc, "", "  ")
	case FormatCBOR:
		payload, err = cbor.Marshal(doc)
	default:
		return fmt.Errorf("unsupported dump format: %s", opts.Format)
	}
	if err != nil {
		return fmt.Errorf("marshal %s: %w", opts.Format, err)
	}

	switch opts.Compression {
	case CompressionNone, "":
		_, err = w.Write(payload)
		return err

	case CompressionLz4:
		zw := lz4.NewWriter(w)
		if _, err := zw.Write(payload); err != nil {
			return fmt.Errorf("lz4 compress failed: %w", err)
		}
		return zw.Close()

	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return err
		}
		if _, err := zw.Write(payload); err != nil {
			zw.Close()
			return fmt.Errorf("zstd compress failed: %w", err)
		}
		return zw.Close()
	}
	return fmt.Errorf("unsupported dump compression: %s", opts.Compression)
}

// Import reads a document written by Export, detecting compression and
// format from the content.
func Import(r io.Reader) (*gmd.Archive, gmd.Version, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	payload, err := decompress(raw)
	if err != nil {
		return nil, 0, err
	}
	if len(payload) == 0 {
		return nil, 0, errors.New("empty dump")
	}

	var doc Document
	if trimmed := bytes.TrimLeft(payload, " \t\r\n\xef\xbb\xbf"); len(trimmed) > 0 && trimmed[0] == '{' {
		err = json.Unmarshal(trimmed, &doc)
	} else {
		err = cbor.Unmarshal(payload, &doc)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("parse dump: %w", err)
	}
	return doc.ToArchive()
}

func decompress(raw []byte) ([]byte, error) {
	switch {
	case bytes.HasPrefix(raw, lz4Magic):
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(raw)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress failed: %w", err)
		}
		return out, nil

	case bytes.HasPrefix(raw, zstdMagic):
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		out, err := dec.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress failed: %w", err)
		}
		return out, nil
	}
	return raw, nil
}
