// Atelier - Generative Image Job Orchestration and Caching
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/atelier

package cache

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/tomtom215/atelier/internal/resource"
)

func checkNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func checkErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("Expected error %v, got %v", target, err)
	}
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.SetNRGBA(0, 1, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	checkNoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir(), "zip", "png")
	checkNoError(t, err)
	return store
}

func archiveNames(t *testing.T, data []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	checkNoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func TestWriteReadRoundTrip(t *testing.T) {
	store := newTestStore(t)
	blob := testPNG(t)

	err := store.Write("20260901_120000", []*Image{
		{Data: blob, Seed: 42},
		nil,
		{Data: blob, Seed: 7},
	})
	checkNoError(t, err)

	data, err := store.Read("20260901_120000")
	checkNoError(t, err)

	names := archiveNames(t, data)
	want := []string{"image_1_42.png", "image_3_7.png"}
	if len(names) != len(want) {
		t.Fatalf("Expected %d entries, got %v", len(want), names)
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("Entry %d: expected %q, got %q", i, name, names[i])
		}
	}
}

func TestWriteAllNilSlotsCreatesNoFile(t *testing.T) {
	store := newTestStore(t)

	checkNoError(t, store.Write("20260901_120000", []*Image{nil, nil}))

	if _, err := os.Stat(store.Path("20260901_120000")); !os.IsNotExist(err) {
		t.Fatalf("Expected no bundle file, stat err = %v", err)
	}
}

func TestWriteEmptySliceCreatesNoFile(t *testing.T) {
	store := newTestStore(t)

	checkNoError(t, store.Write("20260901_120000", nil))

	if _, err := os.Stat(store.Path("20260901_120000")); !os.IsNotExist(err) {
		t.Fatalf("Expected no bundle file, stat err = %v", err)
	}
}

func TestWriteRejectsNonPNG(t *testing.T) {
	store := newTestStore(t)

	err := store.Write("20260901_120000", []*Image{{Data: []byte("not a png"), Seed: 1}})
	if err == nil {
		t.Fatal("Expected sanitize error for non-PNG payload")
	}
}

func TestReadMissingBundle(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Read("20260901_120000")
	checkErrorIs(t, err, ErrNotFound)
}

func writeBundleAt(t *testing.T, store *Store, cacheID string, mtime time.Time) {
	t.Helper()
	checkNoError(t, store.Write(cacheID, []*Image{{Data: testPNG(t), Seed: 1}}))
	checkNoError(t, os.Chtimes(store.Path(cacheID), mtime, mtime))
}

func TestSweepKeepsFreshMatchedBundles(t *testing.T) {
	store := newTestStore(t)
	writeBundleAt(t, store, "20260901_120000", time.Now())

	artifacts := []resource.Artifact{{Author: "ana", CacheID: "20260901_120000"}}
	kept, err := store.Sweep(artifacts, time.Hour)
	checkNoError(t, err)

	if len(kept) != 1 || kept[0].CacheID != "20260901_120000" {
		t.Fatalf("Expected artifact to survive, got %v", kept)
	}
	if _, err := os.Stat(store.Path("20260901_120000")); err != nil {
		t.Fatalf("Expected bundle to survive: %v", err)
	}
}

func TestSweepDeletesExpiredBundles(t *testing.T) {
	store := newTestStore(t)
	writeBundleAt(t, store, "20260901_120000", time.Now().Add(-2*time.Hour))

	artifacts := []resource.Artifact{{Author: "ana", CacheID: "20260901_120000"}}
	kept, err := store.Sweep(artifacts, time.Hour)
	checkNoError(t, err)

	if len(kept) != 0 {
		t.Fatalf("Expected no survivors, got %v", kept)
	}
	if _, err := os.Stat(store.Path("20260901_120000")); !os.IsNotExist(err) {
		t.Fatalf("Expected bundle removed, stat err = %v", err)
	}
}

func TestSweepDeletesUnclaimedFiles(t *testing.T) {
	store := newTestStore(t)
	writeBundleAt(t, store, "20260901_120000", time.Now())
	writeBundleAt(t, store, "20260812_080000", time.Now())

	artifacts := []resource.Artifact{{Author: "ana", CacheID: "20260901_120000"}}
	kept, err := store.Sweep(artifacts, time.Hour)
	checkNoError(t, err)

	if len(kept) != 1 {
		t.Fatalf("Expected one survivor, got %v", kept)
	}
	if _, err := os.Stat(store.Path("20260812_080000")); !os.IsNotExist(err) {
		t.Fatalf("Expected unclaimed bundle removed, stat err = %v", err)
	}
	if _, err := os.Stat(store.Path("20260901_120000")); err != nil {
		t.Fatalf("Expected claimed bundle to survive: %v", err)
	}
}

func TestSweepDropsArtifactsWithoutFiles(t *testing.T) {
	store := newTestStore(t)
	writeBundleAt(t, store, "20260901_120000", time.Now())

	artifacts := []resource.Artifact{
		{Author: "ana", CacheID: "20260831_090000"},
		{Author: "bo", CacheID: "20260901_120000"},
	}
	kept, err := store.Sweep(artifacts, time.Hour)
	checkNoError(t, err)

	if len(kept) != 1 || kept[0].Author != "bo" {
		t.Fatalf("Expected only the backed artifact to survive, got %v", kept)
	}
}

func TestSweepPreservesArtifactOrder(t *testing.T) {
	store := newTestStore(t)
	writeBundleAt(t, store, "20260901_120000", time.Now())
	writeBundleAt(t, store, "20260901_130000", time.Now())

	artifacts := []resource.Artifact{
		{Author: "ana", CacheID: "20260901_120000"},
		{Author: "bo", CacheID: "20260901_130000"},
	}
	kept, err := store.Sweep(artifacts, time.Hour)
	checkNoError(t, err)

	if len(kept) != 2 || kept[0].Author != "ana" || kept[1].Author != "bo" {
		t.Fatalf("Expected order preserved, got %v", kept)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	writeBundleAt(t, store, "20260901_120000", time.Now().Add(-2*time.Hour))
	writeBundleAt(t, store, "20260901_130000", time.Now())

	artifacts := []resource.Artifact{
		{Author: "ana", CacheID: "20260901_120000"},
		{Author: "bo", CacheID: "20260901_130000"},
	}

	first, err := store.Sweep(artifacts, time.Hour)
	checkNoError(t, err)
	second, err := store.Sweep(first, time.Hour)
	checkNoError(t, err)

	if len(first) != len(second) {
		t.Fatalf("Expected stable survivor set, got %v then %v", first, second)
	}
	for i := range first {
		if first[i].CacheID != second[i].CacheID {
			t.Fatalf("Expected stable survivor set, got %v then %v", first, second)
		}
	}
}
