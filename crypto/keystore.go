package crypto

import (
	"errors"
	"os"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// ImportToKeystore encrypts key into a v3 keystore file inside dir. The directory is
// created with 0700 permissions when missing. The file name follows go-ethereum's
// UTC--<timestamp>--<address> convention so the wallet can discover it.
func ImportToKeystore(dir string, key *PrivateKey, passphrase string, scryptN, scryptP int) (accounts.Account, error) {
	if key == nil {
		return accounts.Account{}, errors.New("crypto: nil private key")
	}
	if dir == "" {
		return accounts.Account{}, errors.New("crypto: empty keystore directory")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return accounts.Account{}, err
	}
	ks := keystore.NewKeyStore(dir, scryptN, scryptP)
	return ks.ImportECDSA(key.PrivateKey, passphrase)
}

// NewKeystoreAccount generates a fresh key and stores it in dir.
func NewKeystoreAccount(dir, passphrase string, scryptN, scryptP int) (accounts.Account, error) {
	key, err := GeneratePrivateKey()
	if err != nil {
		return accounts.Account{}, err
	}
	return ImportToKeystore(dir, key, passphrase, scryptN, scryptP)
}

// LoadFromKeystore decrypts an Ethereum v3 keystore file using the supplied passphrase.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keystore path")
	}

	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	decrypted, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, err
	}

	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
