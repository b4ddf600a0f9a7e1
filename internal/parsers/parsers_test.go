package parsers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Saurav-kan/gist/internal/config"
	"github.com/Saurav-kan/gist/internal/giserr"
)

func TestRegistryTextParser(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewDefaultRegistry()
	if !reg.CanParse(path) {
		t.Fatal("expected registry to claim .go file")
	}
	text, err := reg.ExtractText(path)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != "package main\n" {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestRegistryRejectsBinaryDespiteExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fake.go")
	if err := os.WriteFile(path, []byte{0x00, 0x01, 0x02}, 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewDefaultRegistry()
	if reg.CanParse(path) {
		t.Fatal("expected registry to reject binary content despite .go extension")
	}
}

func TestRegistryImageSynthesizesFilenameText(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	if err := os.WriteFile(path, []byte{0x89, 0x50, 0x4E, 0x47}, 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewDefaultRegistry()
	text, err := reg.ExtractText(path)
	if err != nil {
		t.Fatalf("ExtractText: %v", err)
	}
	if text != "image file: photo.png" {
		t.Fatalf("unexpected synthetic text: %q", text)
	}
}

func TestRegistryRespectsExclusionList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	if err := os.WriteFile(path, []byte("package main\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(config.FileTypeFilters{IncludeText: true, IncludePDF: true, IncludeDocx: true, IncludeXlsx: true, ExcludedExtensions: []string{".go"}})
	if reg.CanParse(path) {
		t.Fatal("expected excluded extension to be rejected")
	}
	_, err := reg.ExtractText(path)
	if giserr.KindOf(err) != giserr.BadRequest {
		t.Fatalf("expected BadRequest for excluded extension, got %v", err)
	}
}

func TestRegistryNoParserClaimsUnknownExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}

	reg := NewDefaultRegistry()
	_, err := reg.ExtractText(path)
	if giserr.KindOf(err) != giserr.NotFound {
		t.Fatalf("expected NotFound for unclaimed extension, got %v", err)
	}
}
