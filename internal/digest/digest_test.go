package digest

import (
	"encoding/hex"
	"io"
	"strings"
	"testing"
)

func TestSumKnownVectors(t *testing.T) {
	tests := []struct {
		alg  Algorithm
		in   string
		want string
	}{
		{MD5, "", "d41d8cd98f00b204e9800998ecf8427e"},
		{MD5, "abc", "900150983cd24fb0d6963f7d28e17f72"},
		{SHA256, "", "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"},
		{SHA256, "abc", "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{BLAKE3, "", "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"},
	}
	for _, tt := range tests {
		got, err := Sum(tt.alg, []byte(tt.in))
		if err != nil {
			t.Fatalf("sum %s: %v", tt.alg, err)
		}
		if got != tt.want {
			t.Fatalf("%s(%q)=%s, want %s", tt.alg, tt.in, got, tt.want)
		}
		if len(got) != HexLen(tt.alg) {
			t.Fatalf("%s: expected hex length %d, got %d", tt.alg, HexLen(tt.alg), len(got))
		}
	}
}

func TestStreamingMatchesSum(t *testing.T) {
	payload := strings.Repeat("canonical bytes ", 4096)
	for _, alg := range []Algorithm{BLAKE3, SHA256, MD5} {
		h, err := New(alg)
		if err != nil {
			t.Fatalf("new %s: %v", alg, err)
		}
		if _, err := io.Copy(h, strings.NewReader(payload)); err != nil {
			t.Fatalf("stream %s: %v", alg, err)
		}
		want, err := Sum(alg, []byte(payload))
		if err != nil {
			t.Fatalf("sum %s: %v", alg, err)
		}
		got := hex.EncodeToString(h.Sum(nil))
		if got != want {
			t.Fatalf("%s streaming digest mismatch: %s != %s", alg, got, want)
		}
	}
}

func TestParse(t *testing.T) {
	got, err := Parse("")
	if err != nil || got != Default {
		t.Fatalf("expected default algorithm, got %q err=%v", got, err)
	}
	got, err = Parse(" SHA256 ")
	if err != nil || got != SHA256 {
		t.Fatalf("expected sha256, got %q err=%v", got, err)
	}
	if _, err := Parse("crc32"); err == nil {
		t.Fatal("expected unsupported algorithm error")
	}
}
