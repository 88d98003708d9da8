package credentials

import (
	"fmt"
	"os"
	"strings"

	domcrypto "github.com/nikola43/socks5gate/pkg/crypto"
	"github.com/nikola43/socks5gate/pkg/validator"
	"gopkg.in/yaml.v3"
)

// fileEntry is one row of the on-disk credentials file. Exactly one of
// Password / PasswordHash must be set; PasswordHash holds an
// argon2id-encoded hash produced by pkg/crypto.PasswordHasher.
type fileEntry struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty"`
}

// fileFormat is the top-level YAML document: a flat list validated
// after unmarshal, not a nested schema.
type fileFormat struct {
	Users []fileEntry `yaml:"users"`
}

// LoadYAML reads a credentials file from path. If masterKey is
// non-nil, the file is treated as an AES-256-GCM sealed payload
// (base64, as produced by pkg/crypto.FileCipher.Seal) and opened
// before parsing; otherwise it is read as plain YAML.
//
// Entries with password_hash are verified via argon2id
// (pkg/crypto.PasswordHasher); entries with password are compared in
// constant time. A file may freely mix both per user.
func LoadYAML(path string, masterKey []byte) (*FileStore, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	if masterKey != nil {
		fc, err := domcrypto.NewFileCipher(masterKey, domcrypto.AES256GCM)
		if err != nil {
			return nil, fmt.Errorf("credentials file master key: %w", err)
		}
		plain, err := fc.Open(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("unseal credentials file: %w", err)
		}
		raw = plain
	}

	var doc fileFormat
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	if len(doc.Users) == 0 {
		return nil, fmt.Errorf("credentials file: at least one user is required")
	}

	seen := make(map[string]struct{}, len(doc.Users))
	store := &FileStore{
		plain:  make(map[string]string),
		hashed: make(map[string]string),
		hasher: domcrypto.NewPasswordHasher(),
	}

	for i, u := range doc.Users {
		if u.PasswordHash == "" {
			// password_hash entries skip the username/password shape
			// check: validator.Username/Password assume RFC 1929's
			// printable-octet rules, which don't apply to an
			// already-hashed value.
			if err := validator.ValidateCredentialEntry(u.Username, u.Password); err != nil {
				return nil, fmt.Errorf("credentials file: users[%d]: %w", i, err)
			}
		} else if u.Username == "" {
			return nil, fmt.Errorf("credentials file: users[%d]: username is required", i)
		}
		if _, dup := seen[u.Username]; dup {
			return nil, fmt.Errorf("credentials file: users[%d]: duplicate username %q", i, u.Username)
		}
		seen[u.Username] = struct{}{}

		switch {
		case u.PasswordHash != "" && u.Password != "":
			return nil, fmt.Errorf("credentials file: users[%d]: only one of password or password_hash may be set", i)
		case u.PasswordHash != "":
			store.hashed[u.Username] = u.PasswordHash
		case u.Password != "":
			store.plain[u.Username] = u.Password
		default:
			return nil, fmt.Errorf("credentials file: users[%d]: one of password or password_hash is required", i)
		}
	}

	return store, nil
}

// FileStore is the socks5.CredentialLookup backed by a YAML file,
// optionally encrypted at rest. It is immutable after LoadYAML
// returns.
type FileStore struct {
	plain  map[string]string
	hashed map[string]string
	hasher *domcrypto.PasswordHasher
}

// Verify reports whether password matches the entry on file for
// username, whether that entry is stored plaintext or argon2id-hashed.
func (f *FileStore) Verify(username, password string) bool {
	if hash, ok := f.hashed[username]; ok {
		ok, err := f.hasher.VerifyPassword(password, hash)
		return err == nil && ok
	}
	if want, ok := f.plain[username]; ok {
		return constantTimeEqual(want, password)
	}
	return false
}
