// hashx-admin is the operator tool for pepper key rotation. It reads
// configuration from HASHX_* environment variables (a .env file in the
// working directory is honored) and the sqlite key registry at
// HASHX_KEYSTORE_PATH.
//
// Usage:
//
//	hashx-admin genkey            generate key material, register its id
//	hashx-admin activate <id>     make a registered key the active one
//	hashx-admin keys              list registered keys
//	hashx-admin recode <hash>     re-encrypt a hash under the active key
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/hengadev/hashx"
	"github.com/hengadev/hashx/keystore"
)

func main() {
	log.SetFlags(0)

	// Missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		usage()
	}

	cfg, err := hashx.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("hashx-admin: %v", err)
	}

	ctx := context.Background()

	switch os.Args[1] {
	case "genkey":
		genkey(ctx, cfg)
	case "activate":
		if len(os.Args) != 3 {
			usage()
		}
		activate(ctx, cfg, os.Args[2])
	case "keys":
		listKeys(ctx, cfg)
	case "recode":
		if len(os.Args) != 3 {
			usage()
		}
		recode(ctx, cfg, os.Args[2])
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: hashx-admin genkey | activate <key-id> | keys | recode <hash>")
	os.Exit(2)
}

func openStore(cfg hashx.Config) *keystore.Store {
	if cfg.KeystorePath == "" {
		log.Fatalf("hashx-admin: %s is not set", hashx.EnvKeystorePath)
	}
	store, err := keystore.Open(cfg.KeystorePath)
	if err != nil {
		log.Fatalf("hashx-admin: %v", err)
	}
	return store
}

// genkey prints fresh hex key material and registers a generated key id for
// it. The material itself is for the operator to place in the keyring
// configuration (or a transit/KMS key); it is never written to the registry.
func genkey(ctx context.Context, cfg hashx.Config) {
	material := make([]byte, hashx.KeyringKeyLength)
	if _, err := rand.Read(material); err != nil {
		log.Fatalf("hashx-admin: generating key material: %v", err)
	}

	store := openStore(cfg)
	defer store.Close()

	keyID, err := store.RegisterGenerated(ctx)
	if err != nil {
		log.Fatalf("hashx-admin: %v", err)
	}

	fmt.Printf("key id:   %s\n", keyID)
	fmt.Printf("material: %s\n", hex.EncodeToString(material))
	fmt.Printf("add to %s as %s:<material>, then run: hashx-admin activate %s\n", hashx.EnvKeys, keyID, keyID)
}

func activate(ctx context.Context, cfg hashx.Config, keyID string) {
	store := openStore(cfg)
	defer store.Close()

	if err := store.Activate(ctx, keyID); err != nil {
		log.Fatalf("hashx-admin: %v", err)
	}
}

func listKeys(ctx context.Context, cfg hashx.Config) {
	store := openStore(cfg)
	defer store.Close()

	keys, err := store.Keys(ctx)
	if err != nil {
		log.Fatalf("hashx-admin: %v", err)
	}

	for _, k := range keys {
		state := "retired"
		if k.Active {
			state = "active"
		} else if !k.RetiredAt.Valid {
			state = "registered"
		}
		fmt.Printf("%s\t%s\t%s\n", k.ID, k.CreatedAt.Format("2006-01-02 15:04:05"), state)
	}
}

func recode(ctx context.Context, cfg hashx.Config, encoded string) {
	hasher, err := cfg.NewEncryptedHasher()
	if err != nil {
		log.Fatalf("hashx-admin: %v", err)
	}

	recoded, err := hasher.RecodeHash(ctx, encoded)
	if err != nil {
		log.Fatalf("hashx-admin: %v", err)
	}

	fmt.Println(recoded)
}
