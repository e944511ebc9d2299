package sshx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerateKeypairRoundTrip(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "ssh", "id_ed25519")
	pub, err := GenerateKeypair(priv)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.HasPrefix(pub, "ssh-ed25519 ") {
		t.Errorf("unexpected public key form: %q", pub)
	}
	info, err := os.Stat(priv)
	if err != nil {
		t.Fatalf("private key not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("expected 0600 private key, got %v", info.Mode().Perm())
	}
	signer, err := LoadSigner(priv)
	if err != nil {
		t.Fatalf("load signer: %v", err)
	}
	if signer.PublicKey().Type() != "ssh-ed25519" {
		t.Errorf("unexpected key type %s", signer.PublicKey().Type())
	}
}

func TestLoadSignerMissingFile(t *testing.T) {
	if _, err := LoadSigner(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing key")
	}
}
