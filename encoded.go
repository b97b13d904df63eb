package hashx

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hengadev/hashx/internal/kdf"
)

// EncodedHash is the parsed form of a stored hash string, covering both the
// plain grammar
//
//	$<subtype>$v=19$m=<mem/1024>,t=<time>,p=<lanes>$<b64 salt>$<b64 digest>
//
// and the encrypted grammar
//
//	$<subtype>-encrypted$v=1,cipher=<name>,id=<key id>$v=19$m=<mem/1024>,t=<time>,p=<lanes>$<b64 salt>$<b64 ciphertext>
//
// CipherName and KeyID are empty for the plain form. Memory is normalized to
// bytes in the record; the string carries it in KiB. Salt and Payload are
// raw bytes; the string carries them base64-encoded without padding.
//
// An EncodedHash only lives for the duration of a single hash, verify, or
// recode call. The serialized string is the one persisted artifact, so
// Pack(Parse(s)) must reproduce s byte for byte.
type EncodedHash struct {
	Subtype     Subtype
	CipherName  string
	KeyID       string
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
	Payload     []byte
}

// encryptedTagSuffix marks the encrypted grammar in the leading tag.
const encryptedTagSuffix = "-encrypted"

// envelopeVersion is the version of the cipher envelope segment (the v= in
// "v=1,cipher=...,id=..."). Bump only with a parser for the old layout.
const envelopeVersion = 1

// maxMemoryKiB bounds the m= field so the byte count fits in uint32.
const maxMemoryKiB = math.MaxUint32 / 1024

// Pack serializes a record into its canonical string form, choosing the
// encrypted grammar when CipherName is set. Memory must be a multiple of
// 1024; canonical profiles always are (Params.Validate enforces it).
func Pack(h *EncodedHash) string {
	salt := base64.RawStdEncoding.EncodeToString(h.Salt)
	payload := base64.RawStdEncoding.EncodeToString(h.Payload)

	if h.CipherName != "" {
		return fmt.Sprintf("$%s%s$v=%d,cipher=%s,id=%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
			h.Subtype, encryptedTagSuffix,
			envelopeVersion, h.CipherName, h.KeyID,
			kdf.Version, h.Memory/1024, h.Iterations, h.Parallelism,
			salt, payload)
	}

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		h.Subtype, kdf.Version,
		h.Memory/1024, h.Iterations, h.Parallelism,
		salt, payload)
}

// ParseEncrypted parses a hash string of the encrypted grammar. It returns
// (nil, false) on any deviation, never a partial record; callers use the
// false result to fall through to ParseUnencrypted.
func ParseEncrypted(s string) (*EncodedHash, bool) {
	parts := strings.Split(s, "$")
	if len(parts) != 7 || parts[0] != "" {
		return nil, false
	}

	tag, found := strings.CutSuffix(parts[1], encryptedTagSuffix)
	if !found {
		return nil, false
	}
	subtype, ok := ParseSubtype(tag)
	if !ok {
		return nil, false
	}

	cipherName, keyID, ok := parseEnvelope(parts[2])
	if !ok {
		return nil, false
	}

	if !parseArgonVersion(parts[3]) {
		return nil, false
	}

	memory, iterations, parallelism, ok := parseCosts(parts[4])
	if !ok {
		return nil, false
	}

	salt, ok := decodeField(parts[5])
	if !ok {
		return nil, false
	}
	payload, ok := decodeField(parts[6])
	if !ok {
		return nil, false
	}

	return &EncodedHash{
		Subtype:     subtype,
		CipherName:  cipherName,
		KeyID:       keyID,
		Memory:      memory,
		Iterations:  iterations,
		Parallelism: parallelism,
		Salt:        salt,
		Payload:     payload,
	}, true
}

// ParseUnencrypted parses a hash string of the plain grammar. Same contract
// as ParseEncrypted: (nil, false) on any deviation.
func ParseUnencrypted(s string) (*EncodedHash, bool) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, false
	}

	subtype, ok := ParseSubtype(parts[1])
	if !ok {
		return nil, false
	}

	if !parseArgonVersion(parts[2]) {
		return nil, false
	}

	memory, iterations, parallelism, ok := parseCosts(parts[3])
	if !ok {
		return nil, false
	}

	salt, ok := decodeField(parts[4])
	if !ok {
		return nil, false
	}
	payload, ok := decodeField(parts[5])
	if !ok {
		return nil, false
	}

	return &EncodedHash{
		Subtype:     subtype,
		Memory:      memory,
		Iterations:  iterations,
		Parallelism: parallelism,
		Salt:        salt,
		Payload:     payload,
	}, true
}

// parseEnvelope tokenizes the "v=1,cipher=<name>,id=<key id>" segment.
func parseEnvelope(seg string) (cipherName, keyID string, ok bool) {
	fields := strings.Split(seg, ",")
	if len(fields) != 3 {
		return "", "", false
	}

	version, ok := cutUint(fields[0], "v=")
	if !ok || version != envelopeVersion {
		return "", "", false
	}

	cipherName, ok = cutToken(fields[1], "cipher=")
	if !ok {
		return "", "", false
	}

	keyID, ok = cutToken(fields[2], "id=")
	if !ok {
		return "", "", false
	}

	return cipherName, keyID, true
}

// parseArgonVersion checks the "v=19" segment against the Argon2 version the
// backend computes.
func parseArgonVersion(seg string) bool {
	version, ok := cutUint(seg, "v=")
	return ok && version == kdf.Version
}

// parseCosts tokenizes the "m=<KiB>,t=<time>,p=<lanes>" segment, converting
// the memory cost from KiB to bytes.
func parseCosts(seg string) (memory, iterations uint32, parallelism uint8, ok bool) {
	fields := strings.Split(seg, ",")
	if len(fields) != 3 {
		return 0, 0, 0, false
	}

	m, ok := cutUint(fields[0], "m=")
	if !ok || m == 0 || m > maxMemoryKiB {
		return 0, 0, 0, false
	}

	t, ok := cutUint(fields[1], "t=")
	if !ok || t == 0 || t > math.MaxUint32 {
		return 0, 0, 0, false
	}

	p, ok := cutUint(fields[2], "p=")
	if !ok || p == 0 || p > math.MaxUint8 {
		return 0, 0, 0, false
	}

	return uint32(m) * 1024, uint32(t), uint8(p), true
}

// cutUint strips a prefix and parses the remainder as a canonical decimal:
// digits only, no sign, no leading zero.
func cutUint(s, prefix string) (uint64, bool) {
	rest, found := strings.CutPrefix(s, prefix)
	if !found || rest == "" {
		return 0, false
	}
	if len(rest) > 1 && rest[0] == '0' {
		return 0, false
	}
	for i := 0; i < len(rest); i++ {
		if rest[i] < '0' || rest[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// cutToken strips a prefix and validates the remainder as a cipher or key id
// token: a non-empty run of [A-Za-z0-9._-].
func cutToken(s, prefix string) (string, bool) {
	rest, found := strings.CutPrefix(s, prefix)
	if !found || !isToken(rest) {
		return "", false
	}
	return rest, true
}

// ValidKeyID reports whether s can serve as a pepper key id: key ids are
// embedded verbatim in the encrypted grammar, so they are restricted to the
// token charset [A-Za-z0-9._-].
func ValidKeyID(s string) bool {
	return isToken(s)
}

// isToken reports whether s is a valid cipher name or key id token.
func isToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}

// decodeField decodes a non-empty unpadded base64 field.
func decodeField(s string) ([]byte, bool) {
	if s == "" {
		return nil, false
	}
	b, err := base64.RawStdEncoding.Strict().DecodeString(s)
	if err != nil {
		return nil, false
	}
	return b, true
}
