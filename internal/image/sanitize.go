// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

// Package image strips identifying metadata from generated images and
// extracts the generation seed the provider embeds in them.
package image

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
)

// StripMetadata decodes a PNG, rebuilds the pixel data into a fresh buffer
// and re-encodes it. Ancillary chunks (text, EXIF, timestamps) do not
// survive the round trip; only pixels do. Used for the persisted cache
// copy - the copy shown to the requester keeps the original encoding
// because its seed still has to be extracted from it.
func StripMetadata(data []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := src.Bounds()
	clean := image.NewNRGBA(bounds)
	draw.Draw(clean, bounds, src, bounds.Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, clean); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// FileName builds the deterministic image name used for display attachments
// and cache bundle entries: image_<index>[_<appendix>].<ext>.
func FileName(index int, appendix, ext string) string {
	name := fmt.Sprintf("image_%d", index)
	if appendix != "" {
		name += "_" + appendix
	}
	return name + "." + ext
}
