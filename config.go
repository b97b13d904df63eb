package hashx

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variable names read by LoadConfigFromEnv.
const (
	EnvSubtype      = "HASHX_SUBTYPE"
	EnvMemory       = "HASHX_MEMORY"
	EnvIterations   = "HASHX_ITERATIONS"
	EnvParallelism  = "HASHX_PARALLELISM"
	EnvKeyLength    = "HASHX_KEY_LENGTH"
	EnvSaltLength   = "HASHX_SALT_LENGTH"
	EnvActiveKeyID  = "HASHX_ACTIVE_KEY_ID"
	EnvKeys         = "HASHX_KEYS"
	EnvKeystorePath = "HASHX_KEYSTORE_PATH"
)

// Config holds the declarative configuration for building hashers. It
// contains only data; load it from YAML, the environment, or code and pass
// it to NewHasher / NewEncryptedHasher.
//
// Zero-valued cost fields fall back to the NewParams defaults, so a minimal
// encrypted setup is just active_key_id plus one keyring entry.
type Config struct {
	// Subtype is the Argon2 variant tag ("argon2id"). Default: argon2id.
	Subtype string `yaml:"subtype"`

	// Memory is the memory cost, byte count or k/M/G shorthand ("256M").
	Memory string `yaml:"memory"`

	// Iterations is the time cost.
	Iterations uint32 `yaml:"iterations"`

	// Parallelism is the lane count.
	Parallelism uint8 `yaml:"parallelism"`

	// KeyLength is the digest length in bytes.
	KeyLength uint32 `yaml:"key_length"`

	// SaltLength is the salt length in bytes.
	SaltLength uint32 `yaml:"salt_length"`

	// ActiveKeyID names the pepper key used for new hashes. Required for
	// NewEncryptedHasher.
	ActiveKeyID string `yaml:"active_key_id"`

	// Keys maps key ids to hex-encoded 32-byte AES keys for the local
	// keyring. Retired keys stay listed so old hashes remain
	// decryptable until recoded.
	Keys map[string]string `yaml:"keys"`

	// KeystorePath is the path of the sqlite key metadata database used
	// by the admin tooling. Optional.
	KeystorePath string `yaml:"keystore_path"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: reading config %s: %w", ErrInvalidConfiguration, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing config %s: %w", ErrInvalidConfiguration, path, err)
	}
	return cfg, nil
}

// LoadConfigFromEnv reads configuration from HASHX_* environment variables.
// HASHX_KEYS uses "id:hexkey,id:hexkey" notation. Callers wanting .env file
// support load it first (github.com/joho/godotenv), as cmd/hashx-admin does.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		Subtype:      os.Getenv(EnvSubtype),
		Memory:       os.Getenv(EnvMemory),
		ActiveKeyID:  os.Getenv(EnvActiveKeyID),
		KeystorePath: os.Getenv(EnvKeystorePath),
	}

	var err error
	if cfg.Iterations, err = envUint32(EnvIterations); err != nil {
		return Config{}, err
	}
	if cfg.KeyLength, err = envUint32(EnvKeyLength); err != nil {
		return Config{}, err
	}
	if cfg.SaltLength, err = envUint32(EnvSaltLength); err != nil {
		return Config{}, err
	}

	if v := os.Getenv(EnvParallelism); v != "" {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfiguration, EnvParallelism, err)
		}
		cfg.Parallelism = uint8(n)
	}

	if v := os.Getenv(EnvKeys); v != "" {
		cfg.Keys = make(map[string]string)
		for _, entry := range strings.Split(v, ",") {
			id, material, found := strings.Cut(entry, ":")
			if !found || id == "" || material == "" {
				return Config{}, fmt.Errorf("%w: %s entry %q is not id:hexkey", ErrInvalidConfiguration, EnvKeys, entry)
			}
			cfg.Keys[id] = material
		}
	}

	return cfg, nil
}

func envUint32(name string) (uint32, error) {
	v := os.Getenv(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalidConfiguration, name, err)
	}
	return uint32(n), nil
}

// Params assembles the cost profile described by the configuration,
// defaulting every zero-valued field.
func (c Config) Params() (*Params, error) {
	var opts []ParamsOption

	if c.Subtype != "" {
		subtype, ok := ParseSubtype(c.Subtype)
		if !ok {
			return nil, fmt.Errorf("%w: unknown subtype %q", ErrInvalidConfiguration, c.Subtype)
		}
		opts = append(opts, WithSubtype(subtype))
	}
	if c.Memory != "" {
		opts = append(opts, WithMemory(c.Memory))
	}
	if c.Iterations != 0 {
		opts = append(opts, WithIterations(c.Iterations))
	}
	if c.Parallelism != 0 {
		opts = append(opts, WithParallelism(c.Parallelism))
	}
	if c.KeyLength != 0 {
		opts = append(opts, WithKeyLength(c.KeyLength))
	}
	if c.SaltLength != 0 {
		opts = append(opts, WithSaltLength(c.SaltLength))
	}

	return NewParams(opts...)
}

// NewHasher builds a plain Argon2 hasher from the configuration.
func (c Config) NewHasher() (*Argon2Hasher, error) {
	params, err := c.Params()
	if err != nil {
		return nil, err
	}
	return NewArgon2Hasher(params)
}

// NewEncryptedHasher builds a peppered hasher backed by a local keyring
// assembled from Keys, encrypting new hashes under ActiveKeyID. Setups using
// a remote cipher (Vault, KMS) construct it directly with
// hashx.NewEncryptedHasher instead.
func (c Config) NewEncryptedHasher() (*EncryptedHasher, error) {
	params, err := c.Params()
	if err != nil {
		return nil, err
	}

	if c.ActiveKeyID == "" {
		return nil, fmt.Errorf("%w: active_key_id is required", ErrInvalidConfiguration)
	}

	keys, err := ParseKeyringKeys(c.Keys)
	if err != nil {
		return nil, err
	}
	keyring, err := NewKeyring(keys)
	if err != nil {
		return nil, err
	}

	return NewEncryptedHasher(params, keyring, c.ActiveKeyID)
}
