// Package prooftest builds proof fixtures and a disk-backed proof store for tests.
package prooftest

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/sacrednumerology/sacred-backend/internal/proofs"
	"github.com/sacrednumerology/sacred-backend/pkg/storage/local"
)

// Bucket is the proof bucket used by NewService.
const Bucket = "proofs"

// PNG returns a small valid PNG image.
func PNG(t testing.TB) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// PDF returns bytes that sniff as a PDF document.
func PDF() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
}

// NewService returns a proof store writing under t.TempDir, plus the backing store.
func NewService(t testing.TB) (proofs.Service, *local.Store) {
	t.Helper()
	store, err := local.New(t.TempDir())
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	svc, err := proofs.NewService(proofs.ServiceParams{
		Store:    store,
		Bucket:   Bucket,
		MaxBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("proof service: %v", err)
	}
	return svc, store
}
