// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package service

import (
	"strings"
)

// parseDetailString splits a template detail string into key/value packs.
// Packs are separated by packDelim, keys from values by the first colon.
// Empty packs and packs without a colon are skipped; a trailing listDelim
// on a pack is stripped. Colons inside values are preserved, so urns
// survive intact.
func parseDetailString(detail, packDelim, listDelim string) map[string]string {
	details := make(map[string]string)
	for _, pack := range strings.Split(detail, packDelim) {
		pack = strings.TrimSpace(pack)
		if pack == "" || !strings.Contains(pack, ":") {
			continue
		}
		pack = strings.TrimSuffix(pack, listDelim)
		key, value, _ := strings.Cut(pack, ":")
		details[strings.TrimSpace(key)] = value
	}
	return details
}

// normalizePrompt splits a prompt list on listDelim, trims each entry, and
// rejoins with the canonical delimiter.
func normalizePrompt(prompt, listDelim, joinDelim string) string {
	parts := strings.Split(prompt, listDelim)
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, joinDelim)
}

// reservedWords are the management command names users reach for in the
// wrong place; a prompt must not start with one.
var reservedWords = []string{"help", "list", "add", "del", "get", "set", "clear"}

// reservedWord reports whether the first word of a prompt collides with a
// management command.
func reservedWord(prompt, listDelim string) (string, bool) {
	first, _, _ := strings.Cut(prompt, listDelim)
	first, _, _ = strings.Cut(strings.TrimSpace(first), " ")
	for _, w := range reservedWords {
		if first == w {
			return first, true
		}
	}
	return "", false
}

// clampFloat bounds v to [0, max].
func clampFloat(v, max float64) float64 {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// clampInt bounds v to [0, max].
func clampInt(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
