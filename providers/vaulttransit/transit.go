// Package vaulttransit implements the hashx.Cipher interface on top of
// HashiCorp Vault's Transit secrets engine. Key material never leaves
// Vault: digests are sent to transit/encrypt/<key> and transit/decrypt/<key>
// with the hash salt bound as associated data.
//
// The Transit engine must be enabled and hold one key per pepper key id:
//
//	vault secrets enable transit
//	vault write -f transit/keys/<key id> type=aes256-gcm96
//
// Rotation works the same as with the local keyring: create a new transit
// key, make its id the hasher's active key, and let RecodeHash migrate
// stored hashes. Vault's ciphertext is an opaque "vault:vN:..." string and
// has no fixed overhead, so Overhead reports -1.
package vaulttransit

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/hengadev/hashx"
)

// CipherName is the cipher tag embedded in hashes produced through Vault.
const CipherName = "vault-transit"

const defaultMount = "transit"

// Config holds configuration for the Vault-backed cipher.
type Config struct {
	// Address is the Vault server address. If empty, VAULT_ADDR and the
	// rest of the standard environment configuration apply.
	Address string

	// Token authenticates the client. If empty, VAULT_TOKEN applies.
	Token string

	// Mount is the Transit engine mount path. Default: "transit".
	Mount string
}

// Cipher is a hashx.Cipher backed by the Vault Transit engine.
type Cipher struct {
	client *api.Client
	mount  string
}

var _ hashx.Cipher = (*Cipher)(nil)

// New creates a Vault Transit cipher.
func New(cfg Config) (*Cipher, error) {
	vaultCfg := api.DefaultConfig()
	if cfg.Address != "" {
		vaultCfg.Address = cfg.Address
	}

	client, err := api.NewClient(vaultCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: creating vault client: %w", hashx.ErrInvalidConfiguration, err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = defaultMount
	}

	return &Cipher{client: client, mount: mount}, nil
}

// Name implements hashx.Cipher.
func (c *Cipher) Name() string { return CipherName }

// Overhead implements hashx.Cipher. Transit ciphertext size depends on the
// key version prefix, so it is not a fixed function of the plaintext size.
func (c *Cipher) Overhead() int { return -1 }

// Encrypt implements hashx.Cipher.
func (c *Cipher) Encrypt(ctx context.Context, keyID string, associatedData, plaintext []byte) ([]byte, error) {
	if keyID == "" {
		return nil, fmt.Errorf("%w: key id cannot be empty", hashx.ErrInvalidConfiguration)
	}

	secret, err := c.client.Logical().WriteWithContext(ctx,
		fmt.Sprintf("%s/encrypt/%s", c.mount, keyID),
		map[string]interface{}{
			"plaintext":       base64.StdEncoding.EncodeToString(plaintext),
			"associated_data": base64.StdEncoding.EncodeToString(associatedData),
		})
	if err != nil {
		return nil, fmt.Errorf("%w: transit encrypt with key %q: %w", hashx.ErrEncryptionFailed, keyID, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: no response from transit encrypt", hashx.ErrEncryptionFailed)
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok || ciphertext == "" {
		return nil, fmt.Errorf("%w: ciphertext missing from transit response", hashx.ErrEncryptionFailed)
	}

	return []byte(ciphertext), nil
}

// Decrypt implements hashx.Cipher.
func (c *Cipher) Decrypt(ctx context.Context, keyID string, associatedData, ciphertext []byte) ([]byte, error) {
	if keyID == "" {
		return nil, fmt.Errorf("%w: key id cannot be empty", hashx.ErrInvalidConfiguration)
	}

	secret, err := c.client.Logical().WriteWithContext(ctx,
		fmt.Sprintf("%s/decrypt/%s", c.mount, keyID),
		map[string]interface{}{
			"ciphertext":      string(ciphertext),
			"associated_data": base64.StdEncoding.EncodeToString(associatedData),
		})
	if err != nil {
		return nil, fmt.Errorf("%w: transit decrypt with key %q: %w", hashx.ErrDecryptionFailed, keyID, err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("%w: no response from transit decrypt", hashx.ErrDecryptionFailed)
	}

	encoded, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: plaintext missing from transit response", hashx.ErrDecryptionFailed)
	}

	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding transit plaintext: %w", hashx.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
