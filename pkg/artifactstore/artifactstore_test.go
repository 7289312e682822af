package artifactstore

import (
	"context"
	"crypto/sha256"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestVerifySha256(t *testing.T) {
	data := []byte("compiled circuit bytes")
	sum := sha256.Sum256(data)
	expected := new(big.Int).SetBytes(sum[:])

	if err := VerifySha256(data, expected); err != nil {
		t.Errorf("expected match, got %v", err)
	}

	mismatched := new(big.Int).Add(expected, big.NewInt(1))
	if err := VerifySha256(data, mismatched); err == nil {
		t.Errorf("expected ErrChecksumMismatch")
	}
}

func TestFetchAndVerify(t *testing.T) {
	payload := []byte("artifact contents")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	sum := sha256.Sum256(payload)
	expected := new(big.Int).SetBytes(sum[:])

	dest := filepath.Join(t.TempDir(), "contract.code")
	store := New()
	if err := store.FetchAndVerify(context.Background(), srv.URL, dest, expected, false); err != nil {
		t.Fatalf("FetchAndVerify: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestFetchAndVerifySkipsExisting(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "contract.code")
	if err := os.WriteFile(dest, []byte("preexisting"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store := New()
	if err := store.FetchAndVerify(context.Background(), "http://unused.invalid", dest, big.NewInt(0), true); err != nil {
		t.Fatalf("FetchAndVerify with useExisting: %v", err)
	}
}

func TestFetchAndVerifyChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("actual bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "contract.code")
	store := New()
	err := store.FetchAndVerify(context.Background(), srv.URL, dest, big.NewInt(12345), false)
	if err == nil {
		t.Fatalf("expected checksum mismatch error")
	}
}
