package crypto

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

func TestImportAndLoadKeystore(t *testing.T) {
	dir := t.TempDir()
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	account, err := ImportToKeystore(dir, key, "secret", keystore.LightScryptN, keystore.LightScryptP)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if account.Address != key.Address() {
		t.Fatalf("address mismatch: %s != %s", account.Address.Hex(), key.Address().Hex())
	}

	loaded, err := LoadFromKeystore(account.URL.Path, "secret")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Address() != key.Address() {
		t.Fatalf("loaded key controls %s", loaded.Address().Hex())
	}

	if _, err := LoadFromKeystore(account.URL.Path, "wrong"); err == nil {
		t.Fatal("expected decrypt error for wrong passphrase")
	}
}

func TestPrivateKeyFromHex(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	encoded := "0x" + hex.EncodeToString(key.Bytes())
	parsed, err := PrivateKeyFromHex(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Address() != key.Address() {
		t.Fatal("parsed key does not match")
	}
	if _, err := PrivateKeyFromHex("zz"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
}
