// Package hashx provides peppered Argon2 password hashing with lazy pepper
// key rotation.
//
// Two encoders share one string format family. Argon2Hasher produces the
// familiar PHC-style plain grammar:
//
//	$argon2id$v=19$m=262144,t=3,p=1$<salt>$<digest>
//
// EncryptedHasher additionally encrypts the raw Argon2 digest under a
// secret pepper key, named by a key id, before packing:
//
//	$argon2id-encrypted$v=1,cipher=aes-256-gcm,id=k1$v=19$m=262144,t=3,p=1$<salt>$<ciphertext>
//
// # Key Features
//
//   - Argon2i and Argon2id hashing with configurable cost profiles
//   - Digest encryption under a rotatable pepper key (local AES-256-GCM
//     keyring, HashiCorp Vault Transit, or AWS KMS)
//   - Lazy rotation: NeedsRehash flags hashes under a stale key, RecodeHash
//     migrates them without the original password
//   - Legacy plain hashes verify transparently and upgrade via RecodeHash
//   - sqlite-backed key registry and admin CLI for rotation bookkeeping
//
// # Quick Start
//
//	params, err := hashx.NewParams(hashx.WithMemory("64M"), hashx.WithIterations(2))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	keys, _ := hashx.ParseKeyringKeys(map[string]string{"k1": os.Getenv("PEPPER_K1")})
//	ring, err := hashx.NewKeyring(keys)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	hasher, err := hashx.NewEncryptedHasher(params, ring, "k1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	encoded, err := hasher.HashPassword(ctx, password)
//	// store encoded; later:
//	ok := hasher.VerifyPassword(ctx, password, encoded)
//	if ok && hasher.NeedsRehash(ctx, encoded) {
//	    encoded, err = hasher.RecodeHash(ctx, encoded)
//	    // persist the recoded hash
//	}
//
// # Pepper Rotation
//
// To rotate the pepper, add a new key to the keyring, keep the old one for
// decryption, and construct the hasher with the new id as active. Stored
// hashes keep verifying under their embedded key id; NeedsRehash reports
// true for them, and RecodeHash re-encrypts the digest under the active key
// while preserving the original salt and cost parameters. Old key material
// can be deleted once no stored hash references its id.
package hashx
