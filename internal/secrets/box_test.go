package secrets

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func testKey(b byte) []byte { return bytes.Repeat([]byte{b}, keySize) }

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := New(testKey(7))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sealed, err := box.Seal("sk-live-123")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !strings.HasPrefix(sealed, prefix) || strings.Contains(sealed, "sk-live-123") {
		t.Fatalf("value not sealed: %s", sealed)
	}
	again, _ := box.Seal("sk-live-123")
	if again == sealed {
		t.Fatal("nonces must differ between seals")
	}
	plain, err := box.Open(sealed)
	if err != nil || plain != "sk-live-123" {
		t.Fatalf("Open = %q, %v", plain, err)
	}
}

func TestOpenWithWrongKey(t *testing.T) {
	a, _ := New(testKey(1))
	b, _ := New(testKey(2))
	sealed, _ := a.Seal("secret")
	if _, err := b.Open(sealed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if _, err := a.Open(prefix + "AAAA"); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen for truncated value, got %v", err)
	}
}

func TestNilBoxPassesThrough(t *testing.T) {
	box, err := New(nil)
	if err != nil || box != nil {
		t.Fatalf("New(nil) = %v, %v", box, err)
	}
	sealed, _ := box.Seal("plain")
	if sealed != "plain" {
		t.Fatalf("nil box must not seal, got %q", sealed)
	}
	if got, _ := box.Open("plain"); got != "plain" {
		t.Fatalf("Open = %q", got)
	}
	other, _ := New(testKey(3))
	s, _ := other.Seal("x")
	if _, err := box.Open(s); !errors.Is(err, ErrOpen) {
		t.Fatal("nil box cannot open sealed values")
	}
}

func TestNewRejectsShortKey(t *testing.T) {
	if _, err := New([]byte("short")); err == nil {
		t.Fatal("expected error")
	}
}

func TestEmptyStaysEmpty(t *testing.T) {
	box, _ := New(testKey(9))
	if s, _ := box.Seal(""); s != "" {
		t.Fatalf("Seal(\"\") = %q", s)
	}
}
