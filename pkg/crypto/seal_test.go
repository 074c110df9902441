package crypto

import (
	"strings"
	"testing"
)

const testKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func TestSealRoundTrip(t *testing.T) {
	sealer, err := NewSealer(testKey)
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := sealer.Seal("refresh-token-value")
	if err != nil {
		t.Fatal(err)
	}
	if sealed == "refresh-token-value" {
		t.Fatal("sealed value must differ from plaintext")
	}

	opened, err := sealer.Open(sealed)
	if err != nil {
		t.Fatal(err)
	}
	if opened != "refresh-token-value" {
		t.Errorf("opened = %q", opened)
	}
}

func TestSealNoncesDiffer(t *testing.T) {
	sealer, _ := NewSealer(testKey)
	a, _ := sealer.Seal("same")
	b, _ := sealer.Seal("same")
	if a == b {
		t.Error("two seals of the same plaintext must not be identical")
	}
}

func TestOpenRejectsTampering(t *testing.T) {
	sealer, _ := NewSealer(testKey)
	sealed, _ := sealer.Seal("secret")

	tampered := strings.Replace(sealed, sealed[:1], "A", 1)
	if tampered == sealed {
		tampered = "B" + sealed[1:]
	}
	if _, err := sealer.Open(tampered); err == nil {
		t.Error("tampered ciphertext must not open")
	}
}

func TestNilSealerPassesThrough(t *testing.T) {
	sealer, err := NewSealer("")
	if err != nil {
		t.Fatal(err)
	}
	if sealer != nil {
		t.Fatal("empty key should disable sealing")
	}

	sealed, err := sealer.Seal("plain")
	if err != nil || sealed != "plain" {
		t.Errorf("Seal = %q, %v", sealed, err)
	}
	opened, err := sealer.Open("plain")
	if err != nil || opened != "plain" {
		t.Errorf("Open = %q, %v", opened, err)
	}
}

func TestNewSealerRejectsBadKeys(t *testing.T) {
	if _, err := NewSealer("not-hex"); err == nil {
		t.Error("non-hex key must be rejected")
	}
	if _, err := NewSealer("abcd"); err == nil {
		t.Error("short key must be rejected")
	}
}
