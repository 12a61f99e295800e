package parser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"drive-agent-backend/service/scan"
)

func TestParsePlainText(t *testing.T) {
	r := NewRegistry()

	text, err := r.Parse(context.Background(), []byte("hello\nworld"), "text/plain")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "hello") || !strings.Contains(text, "world") {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestParseMimeWithCharsetSuffix(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Parse(context.Background(), []byte("hello"), "text/plain; charset=utf-8"); err != nil {
		t.Fatal(err)
	}
}

func TestParseMarkdown(t *testing.T) {
	r := NewRegistry()

	text, err := r.Parse(context.Background(), []byte("# Title\n\nbody"), "text/markdown")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "body") {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestParseCSV(t *testing.T) {
	r := NewRegistry()

	text, err := r.Parse(context.Background(), []byte("name,due\nreport,2026-03-10\n"), "text/csv")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "report") {
		t.Fatalf("unexpected text: %q", text)
	}
}

func TestParseUnsupportedFormatIsPermanent(t *testing.T) {
	r := NewRegistry()

	_, err := r.Parse(context.Background(), []byte{0x00}, "image/png")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, scan.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if !scan.IsPermanent(err) {
		t.Fatal("unsupported format must be permanent")
	}
}

func TestParseCorruptPDFIsPermanent(t *testing.T) {
	r := NewRegistry()

	_, err := r.Parse(context.Background(), []byte("not a pdf"), "application/pdf")
	if err == nil {
		t.Fatal("expected error for corrupt pdf")
	}
	if !scan.IsPermanent(err) {
		t.Fatal("corrupt content must be permanent")
	}
}
