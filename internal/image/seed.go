// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package image

import (
	"bytes"
	"encoding/binary"
	"io"
	"regexp"
	"strconv"
	"unicode/utf16"

	"github.com/klauspost/compress/zlib"
)

// UnknownSeed is the sentinel recorded when an image carries no parseable
// seed. It is a valid artifact seed value, not an error.
const UnknownSeed int64 = -1

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

var seedPattern = regexp.MustCompile(`Seed: (\d+)`)

// ExtractSeed scans a PNG's textual metadata for the provider's
// "Seed: <digits>" marker and returns the parsed seed, or UnknownSeed if
// the marker is absent or the data is not a well-formed PNG.
func ExtractSeed(data []byte) int64 {
	for _, text := range textChunks(data) {
		if match := seedPattern.FindStringSubmatch(text); match != nil {
			seed, err := strconv.ParseInt(match[1], 10, 64)
			if err != nil {
				continue
			}
			return seed
		}
	}
	return UnknownSeed
}

// textChunks walks the PNG chunk stream and collects every textual payload:
// tEXt and zTXt (latin-1), iTXt (utf-8, optionally deflated), and eXIf
// decoded as UTF-16BE the way generation front ends embed parameters there.
func textChunks(data []byte) []string {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil
	}
	rest := data[len(pngSignature):]

	var texts []string
	for len(rest) >= 8 {
		length := binary.BigEndian.Uint32(rest[:4])
		chunkType := string(rest[4:8])
		if uint64(len(rest)) < 8+uint64(length)+4 {
			break
		}
		payload := rest[8 : 8+length]

		switch chunkType {
		case "tEXt":
			texts = append(texts, textPayload(payload, false))
		case "zTXt":
			texts = append(texts, textPayload(payload, true))
		case "iTXt":
			if text, ok := itxtPayload(payload); ok {
				texts = append(texts, text)
			}
		case "eXIf":
			texts = append(texts, decodeUTF16BE(payload))
		case "IEND":
			return texts
		}

		rest = rest[8+length+4:]
	}
	return texts
}

// textPayload splits a tEXt/zTXt payload into keyword and value, inflating
// the value for zTXt. Undecodable payloads degrade to the empty string.
func textPayload(payload []byte, compressed bool) string {
	keyword, value, found := bytes.Cut(payload, []byte{0})
	if !found {
		return string(payload)
	}
	if compressed {
		// zTXt: one compression-method byte, then a zlib stream.
		if len(value) < 2 {
			return ""
		}
		inflated, err := inflate(value[1:])
		if err != nil {
			return ""
		}
		value = inflated
	}
	return string(keyword) + ": " + string(value)
}

// itxtPayload parses an iTXt payload: keyword, compression flag and method,
// language tag, translated keyword, then the (possibly deflated) text.
func itxtPayload(payload []byte) (string, bool) {
	keyword, rest, found := bytes.Cut(payload, []byte{0})
	if !found || len(rest) < 2 {
		return "", false
	}
	compressed := rest[0] == 1
	rest = rest[2:]

	// Skip language tag and translated keyword.
	for range 2 {
		_, next, ok := bytes.Cut(rest, []byte{0})
		if !ok {
			return "", false
		}
		rest = next
	}

	if compressed {
		inflated, err := inflate(rest)
		if err != nil {
			return "", false
		}
		rest = inflated
	}
	return string(keyword) + ": " + string(rest), true
}

// inflate decompresses a zlib stream.
func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()
	return io.ReadAll(r)
}

// decodeUTF16BE decodes big-endian UTF-16 bytes, dropping a trailing odd byte.
func decodeUTF16BE(data []byte) string {
	units := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		units = append(units, binary.BigEndian.Uint16(data[i:i+2]))
	}
	return string(utf16.Decode(units))
}
