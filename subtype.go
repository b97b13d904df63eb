package hashx

// Subtype identifies one of the Argon2 hashing variants.
//
// The variant is encoded as the leading tag of every hash string
// ("$argon2id$...", "$argon2id-encrypted$..."), so the set of subtypes is
// part of the persisted format and must stay closed: adding or removing a
// variant is a compile-time change, not a registration call.
type Subtype uint8

const (
	// Argon2i is the data-independent variant, resistant to side-channel
	// attacks at the cost of weaker GPU resistance.
	Argon2i Subtype = iota + 1

	// Argon2d is the data-dependent variant. It is recognized in stored
	// hashes for compatibility, but golang.org/x/crypto/argon2 does not
	// implement it, so hashers cannot be configured with it.
	Argon2d

	// Argon2id is the hybrid variant and the recommended default.
	Argon2id
)

// String returns the tag used for this subtype in hash strings.
func (s Subtype) String() string {
	switch s {
	case Argon2i:
		return "argon2i"
	case Argon2d:
		return "argon2d"
	case Argon2id:
		return "argon2id"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the known Argon2 variants.
func (s Subtype) Valid() bool {
	switch s {
	case Argon2i, Argon2d, Argon2id:
		return true
	default:
		return false
	}
}

// ParseSubtype maps a hash tag ("argon2id") back to its Subtype.
// The second return value is false when the tag is not a known variant.
func ParseSubtype(tag string) (Subtype, bool) {
	switch tag {
	case "argon2i":
		return Argon2i, true
	case "argon2d":
		return Argon2d, true
	case "argon2id":
		return Argon2id, true
	default:
		return 0, false
	}
}
