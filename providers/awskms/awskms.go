// Package awskms implements the hashx.Cipher interface on top of AWS KMS.
// Digests are encrypted with kms:Encrypt under a KMS key resolved from the
// pepper key id, and the hash salt is bound through the EncryptionContext so
// a ciphertext cannot be verified against a different salt.
//
// KMS ciphertext embeds its own key reference and envelope metadata, so
// Overhead reports -1 and the encrypted-form length check in NeedsRehash is
// skipped.
package awskms

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"

	"github.com/hengadev/hashx"
)

// CipherName is the cipher tag embedded in hashes produced through KMS.
const CipherName = "aws-kms"

// saltContextKey is the EncryptionContext entry carrying the hash salt.
const saltContextKey = "hashx:salt"

// kmsClient is the subset of the KMS API this cipher uses (allows mocking).
type kmsClient interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Config holds configuration for the KMS-backed cipher.
type Config struct {
	// Region is the AWS region (e.g. "us-east-1"). If empty, AWS_REGION
	// or the AWS config file applies.
	Region string

	// AWSConfig is an optional pre-configured AWS config. If provided,
	// Region is ignored.
	AWSConfig *aws.Config

	// Keys maps pepper key ids to KMS key ids, ARNs, or aliases. When
	// nil, the pepper key id itself is passed to KMS, which only works
	// if key ids are aliases valid under the grammar's token charset.
	Keys map[string]string
}

// Cipher is a hashx.Cipher backed by AWS KMS.
type Cipher struct {
	client kmsClient
	keys   map[string]string
}

var _ hashx.Cipher = (*Cipher)(nil)

// New creates an AWS KMS cipher.
func New(ctx context.Context, cfg Config) (*Cipher, error) {
	var awsConfig aws.Config
	var err error

	if cfg.AWSConfig != nil {
		awsConfig = *cfg.AWSConfig
	} else {
		opts := []func(*config.LoadOptions) error{}
		if cfg.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Region))
		}
		awsConfig, err = config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to load AWS config: %w", hashx.ErrInvalidConfiguration, err)
		}
	}

	return &Cipher{
		client: kms.NewFromConfig(awsConfig),
		keys:   cfg.Keys,
	}, nil
}

// Name implements hashx.Cipher.
func (c *Cipher) Name() string { return CipherName }

// Overhead implements hashx.Cipher.
func (c *Cipher) Overhead() int { return -1 }

// resolve maps a pepper key id to the KMS key identifier to call with.
func (c *Cipher) resolve(keyID string) (string, error) {
	if keyID == "" {
		return "", fmt.Errorf("%w: key id cannot be empty", hashx.ErrInvalidConfiguration)
	}
	if c.keys == nil {
		return keyID, nil
	}
	kmsKeyID, ok := c.keys[keyID]
	if !ok {
		return "", fmt.Errorf("%w: %q", hashx.ErrKeyNotFound, keyID)
	}
	return kmsKeyID, nil
}

// encryptionContext binds the hash salt to the ciphertext. KMS requires
// string values, so the salt travels hex-encoded.
func encryptionContext(associatedData []byte) map[string]string {
	return map[string]string{
		saltContextKey: hex.EncodeToString(associatedData),
	}
}

// Encrypt implements hashx.Cipher.
func (c *Cipher) Encrypt(ctx context.Context, keyID string, associatedData, plaintext []byte) ([]byte, error) {
	kmsKeyID, err := c.resolve(keyID)
	if err != nil {
		return nil, err
	}

	out, err := c.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:             aws.String(kmsKeyID),
		Plaintext:         plaintext,
		EncryptionContext: encryptionContext(associatedData),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: kms encrypt with key %q: %w", hashx.ErrEncryptionFailed, keyID, err)
	}
	if out.CiphertextBlob == nil {
		return nil, fmt.Errorf("%w: no ciphertext returned by KMS", hashx.ErrEncryptionFailed)
	}

	return out.CiphertextBlob, nil
}

// Decrypt implements hashx.Cipher. The KMS key reference travels inside the
// ciphertext blob; the resolved key id is still passed so KMS rejects a
// ciphertext produced under a different key.
func (c *Cipher) Decrypt(ctx context.Context, keyID string, associatedData, ciphertext []byte) ([]byte, error) {
	kmsKeyID, err := c.resolve(keyID)
	if err != nil {
		return nil, err
	}

	out, err := c.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:             aws.String(kmsKeyID),
		CiphertextBlob:    ciphertext,
		EncryptionContext: encryptionContext(associatedData),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: kms decrypt with key %q: %w", hashx.ErrDecryptionFailed, keyID, err)
	}
	if out.Plaintext == nil {
		return nil, fmt.Errorf("%w: no plaintext returned by KMS", hashx.ErrDecryptionFailed)
	}

	return out.Plaintext, nil
}
