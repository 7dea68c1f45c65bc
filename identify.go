package gmd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Identify reads the magic and version code of the file at path. It returns
// ErrNotFound when the path is not a readable file and ErrNotSupported for
// anything that is not a recognized GMD version.
func Identify(path string) (Version, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if fi.IsDir() {
		return 0, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	defer f.Close()

	var head [8]byte
	if _, err := io.ReadFull(f, head[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, fmt.Errorf("%w: %s is too short", ErrNotSupported, path)
		}
		return 0, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return IdentifyBytes(head[:])
}

// IdentifyBytes applies the Identify checks to the start of data.
func IdentifyBytes(data []byte) (Version, error) {
	if len(data) < 8 {
		return 0, fmt.Errorf("%w: %d bytes is too short", ErrNotSupported, len(data))
	}
	sig := data[:4]
	if i := bytes.IndexByte(sig, 0); i >= 0 {
		sig = sig[:i]
	}
	if string(sig) != "GMD" {
		return 0, fmt.Errorf("%w: magic %q", ErrNotSupported, data[:4])
	}
	v := Version(binary.LittleEndian.Uint32(data[4:8]))
	if v != V1 && v != V2 {
		return 0, fmt.Errorf("%w: version 0x%08X", ErrNotSupported, uint32(v))
	}
	return v, nil
}

// Layout is the physical sub-layout of a v2 file.
type Layout int

const (
	LayoutNone Layout = iota
	LayoutCTR
	LayoutMobile
)

func (l Layout) String() string {
	switch l {
	case LayoutCTR:
		return "ctr"
	case LayoutMobile:
		return "mobile"
	}
	return "none"
}

// Info summarizes a GMD header without decoding the text.
type Info struct {
	Version       Version
	Layout        Layout
	Language      Language
	Name          string
	LabelCount    int
	SectionCount  int
	LabelBlobSize int
	TextBlobSize  int
	Size          int
}

// Sniff identifies data and parses its header. For v2 it also runs the file
// size probe that selects the CTR or Mobile layout.
func Sniff(data []byte) (Info, error) {
	v, err := IdentifyBytes(data)
	if err != nil {
		return Info{}, err
	}
	r := newReader(data)
	h, err := readHeader(r)
	if err != nil {
		return Info{}, err
	}
	name, err := readName(r, h)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		Version:       v,
		Language:      h.Language,
		Name:          name,
		LabelCount:    int(h.LabelCount),
		SectionCount:  int(h.SectionCount),
		LabelBlobSize: int(h.LabelBlobSize),
		TextBlobSize:  int(h.TextBlobSize),
		Size:          len(data),
	}
	if v == V2 {
		if info.Layout, err = probeLayout(h, int64(len(data))); err != nil {
			return Info{}, err
		}
	}
	return info, nil
}
