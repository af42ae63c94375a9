package crypto

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"testing"

	errpkg "github.com/tracktide/tracktide/internal/errors"
)

var testSecret = []byte("0123456789abcdef")

func TestDeriveKey_Reproducible(t *testing.T) {
	key1, err := DeriveKey("3135556", testSecret)
	if err != nil {
		t.Fatalf("DeriveKey error: %v", err)
	}
	key2, err := DeriveKey("3135556", testSecret)
	if err != nil {
		t.Fatalf("DeriveKey error: %v", err)
	}
	if !bytes.Equal(key1, key2) {
		t.Errorf("expected identical keys for identical inputs, got %x and %x", key1, key2)
	}
	if len(key1) != 16 {
		t.Errorf("expected 16-byte key, got %d bytes", len(key1))
	}
}

func TestDeriveKey_Folding(t *testing.T) {
	trackID := "42"
	sum := md5.Sum([]byte(trackID))
	digest := hex.EncodeToString(sum[:])

	key, err := DeriveKey(trackID, testSecret)
	if err != nil {
		t.Fatalf("DeriveKey error: %v", err)
	}

	for i := 0; i < 16; i++ {
		want := digest[i] ^ digest[i+16] ^ testSecret[i]
		if key[i] != want {
			t.Errorf("key[%d] = %#x, want %#x", i, key[i], want)
		}
	}
}

func TestDeriveKey_DistinctTracks(t *testing.T) {
	key1, _ := DeriveKey("1", testSecret)
	key2, _ := DeriveKey("2", testSecret)
	if bytes.Equal(key1, key2) {
		t.Errorf("expected different keys for different track IDs")
	}
}

func TestDeriveKey_NonNumericID(t *testing.T) {
	tests := []struct {
		name    string
		trackID string
	}{
		{name: "letters", trackID: "abc123"},
		{name: "empty", trackID: ""},
		{name: "negative", trackID: "-5"},
		{name: "whitespace", trackID: "12 34"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeriveKey(tt.trackID, testSecret)
			if err == nil {
				t.Fatalf("expected error for track ID %q, got nil", tt.trackID)
			}
			if !errors.Is(err, errpkg.ErrDecryptionSetup) {
				t.Errorf("expected ErrDecryptionSetup, got %v", err)
			}
		})
	}
}

func TestTrackCipher_RoundTrip(t *testing.T) {
	c, err := NewTrackCipher("3135556", testSecret)
	if err != nil {
		t.Fatalf("NewTrackCipher error: %v", err)
	}

	plain := make([]byte, ChunkSize)
	for i := range plain {
		plain[i] = byte(i * 7)
	}

	chunk := make([]byte, ChunkSize)
	copy(chunk, plain)

	c.EncryptChunk(chunk)
	if bytes.Equal(chunk, plain) {
		t.Fatalf("expected ciphertext to differ from plaintext")
	}

	c.DecryptChunk(chunk)
	if !bytes.Equal(chunk, plain) {
		t.Errorf("round trip mismatch")
	}
}

func TestTrackCipher_PreservesLength(t *testing.T) {
	c, err := NewTrackCipher("7", testSecret)
	if err != nil {
		t.Fatalf("NewTrackCipher error: %v", err)
	}

	for _, size := range []int{0, 1, 7, 8, 100, 1024, ChunkSize} {
		chunk := make([]byte, size)
		out := c.DecryptChunk(chunk)
		if len(out) != size {
			t.Errorf("size %d: decrypt changed length to %d", size, len(out))
		}
	}
}

func TestTrackCipher_PartialChunkPassthrough(t *testing.T) {
	c, err := NewTrackCipher("7", testSecret)
	if err != nil {
		t.Fatalf("NewTrackCipher error: %v", err)
	}

	// 100 is not a multiple of the 8-byte block size: terminal partial chunk.
	partial := make([]byte, 100)
	for i := range partial {
		partial[i] = byte(i)
	}
	want := make([]byte, 100)
	copy(want, partial)

	got := c.DecryptChunk(partial)
	if !bytes.Equal(got, want) {
		t.Errorf("expected partial chunk to pass through unmodified")
	}
}
