package hashx

import "errors"

var (
	// Configuration errors, fatal at construction time.
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrUnsupportedSubtype   = errors.New("unsupported argon2 subtype")

	// Cipher errors
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrUnknownCipher    = errors.New("unknown cipher")
	ErrKeyNotFound      = errors.New("pepper key not found")

	// Keystore errors
	ErrKeystoreUnavailable = errors.New("keystore unavailable")
	ErrNoActiveKey         = errors.New("no active pepper key")
)

// IsConfigurationError returns true if the error represents a configuration
// problem that must be fixed by the operator rather than retried.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrUnsupportedSubtype)
}

// IsDecryptionError returns true if the error represents a failure to
// recover a digest from its encrypted form: unknown cipher or key id,
// or tampered ciphertext.
func IsDecryptionError(err error) bool {
	return errors.Is(err, ErrDecryptionFailed) ||
		errors.Is(err, ErrUnknownCipher) ||
		errors.Is(err, ErrKeyNotFound)
}
