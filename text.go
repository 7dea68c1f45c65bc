package gmd

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// NormalizeNewlines rewrites every line break as CRLF. CRLF is first folded
// to LF so existing CRLF pairs are not doubled.
func NormalizeNewlines(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\r\n", "\n"), "\n", "\r\n")
}

// splitSections cuts a text blob into count NUL-terminated runs. If the blob
// ends early and allowShort is set, the remaining sections are empty;
// v2 files omit the text of unlabeled entries.
func splitSections(blob []byte, count int, base int64, allowShort bool) ([]string, error) {
	texts := make([]string, count)
	pos := 0
	for i := 0; i < count; i++ {
		if pos == len(blob) {
			if !allowShort {
				return nil, structErr("split text", base+int64(pos), "text blob holds %d of %d sections", i, count)
			}
			Debugf("[GMD] text blob ends after %d of %d sections\n", i, count)
			break
		}
		end := bytes.IndexByte(blob[pos:], 0)
		if end < 0 {
			return nil, structErr("split text", base+int64(pos), "section %d has no null terminator", i)
		}
		texts[i] = NormalizeNewlines(strings.ToValidUTF8(string(blob[pos:pos+end]), "�"))
		pos += end + 1
	}
	if pos < len(blob) {
		Debugf("[GMD] %d trailing bytes after %d text sections\n", len(blob)-pos, count)
	}
	return texts, nil
}

// readTextBlob deobfuscates a text blob and splits it into count sections.
// When the final byte fits several readings, the first one (plaintext, then
// key pairs from last to first) made of minRuns to count NUL-terminated
// valid UTF-8 runs is used. Otherwise the DeXOR choice stands.
func readTextBlob(raw []byte, minRuns, count int, base int64, allowShort bool) ([]string, error) {
	if readings := xorReadings(raw); len(readings) > 1 {
		for _, id := range readings {
			blob := xorReading(raw, id)
			if !sectionsFit(blob, minRuns, count) {
				continue
			}
			if id == plainText {
				Debugf("[GMD] text blob (%d bytes) read as plaintext\n", len(raw))
			} else {
				Debugf("[GMD] text blob (%d bytes) read with keypair %d\n", len(raw), id)
			}
			return splitSections(blob, count, base, allowShort)
		}
	}
	plain, err := DeXOR(raw)
	if err != nil {
		return nil, err
	}
	return splitSections(plain, count, base, allowShort)
}

func sectionsFit(blob []byte, minRuns, maxRuns int) bool {
	if len(blob) > 0 && blob[len(blob)-1] != 0 {
		return false
	}
	runs := bytes.Count(blob, []byte{0})
	return runs >= minRuns && runs <= maxRuns && utf8.Valid(blob)
}

// joinSections builds a text blob from the normalized text of every entry
// keep accepts. A nil keep takes all entries.
func joinSections(entries []Entry, keep func(Entry) bool) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		if keep != nil && !keep(e) {
			continue
		}
		writeCString(&buf, NormalizeNewlines(e.Text))
	}
	return buf.Bytes()
}

// joinLabels builds the label blob and returns each labeled entry's offset
// into it; unlabeled entries get -1.
func joinLabels(entries []Entry) ([]byte, []int64) {
	var buf bytes.Buffer
	offsets := make([]int64, len(entries))
	for i, e := range entries {
		if !e.HasLabel() {
			offsets[i] = -1
			continue
		}
		offsets[i] = int64(buf.Len())
		writeCString(&buf, e.Label)
	}
	return buf.Bytes(), offsets
}
