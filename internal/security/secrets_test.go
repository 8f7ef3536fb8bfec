package security

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestSecretStore_SetGetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	store, err := OpenSecretStore(path, []byte("correct horse battery staple"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set("anthropic_api_key", []byte("sk-test-123")); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get("anthropic_api_key")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("sk-test-123")) {
		t.Fatalf("got %q, want %q", got, "sk-test-123")
	}
}

func TestSecretStore_GetMissingReturnsNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	store, err := OpenSecretStore(path, []byte("pass"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get("nope"); err != ErrSecretNotFound {
		t.Fatalf("got %v, want ErrSecretNotFound", err)
	}
}

func TestSecretStore_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	store, err := OpenSecretStore(path, []byte("pass"))
	if err != nil {
		t.Fatal(err)
	}
	store.Set("k", []byte("v"))
	if err := store.Delete("k"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get("k"); err != ErrSecretNotFound {
		t.Fatal("expected secret to be gone")
	}
}

func TestSecretStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	passphrase := []byte("pass")

	store1, err := OpenSecretStore(path, passphrase)
	if err != nil {
		t.Fatal(err)
	}
	if err := store1.Set("k", []byte("v")); err != nil {
		t.Fatal(err)
	}

	store2, err := OpenSecretStore(path, passphrase)
	if err != nil {
		t.Fatal(err)
	}
	got, err := store2.Get("k")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "v" {
		t.Fatalf("got %q, want %q", got, "v")
	}
}

func TestSecretStore_WrongPassphraseFailsToDecrypt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	store1, err := OpenSecretStore(path, []byte("right"))
	if err != nil {
		t.Fatal(err)
	}
	store1.Set("k", []byte("v"))

	store2, err := OpenSecretStore(path, []byte("wrong"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store2.Get("k"); err == nil {
		t.Fatal("expected decryption failure with wrong passphrase")
	}
}

func TestSecretStore_Names(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.json")
	store, err := OpenSecretStore(path, []byte("pass"))
	if err != nil {
		t.Fatal(err)
	}
	store.Set("a", []byte("1"))
	store.Set("b", []byte("2"))
	names := store.Names()
	if len(names) != 2 {
		t.Fatalf("got %d names, want 2", len(names))
	}
}
