package hashx

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hengadev/errsx"
)

// Default cost parameters applied by NewParams. Memory follows the shorthand
// notation accepted by WithMemory.
const (
	DefaultSubtype     = Argon2id
	DefaultMemory      = "256M"
	DefaultIterations  = 3
	DefaultParallelism = 1
	DefaultKeyLength   = 16
	DefaultSaltLength  = 16
)

// Params holds the Argon2 cost profile for a hasher.
//
// Memory is stored as a plain byte count; the wire format carries it in KiB,
// so Validate enforces a multiple of 1024. A Params value is immutable once
// handed to a hasher and safe for concurrent reads.
type Params struct {
	// Subtype is the Argon2 variant used for new hashes.
	Subtype Subtype

	// Memory is the memory cost in bytes.
	Memory uint32

	// Iterations is the time cost (passes over memory).
	Iterations uint32

	// Parallelism is the number of lanes.
	Parallelism uint8

	// KeyLength is the digest length in bytes.
	KeyLength uint32

	// SaltLength is the random salt length in bytes.
	SaltLength uint32
}

// ParamsOption configures a Params value during construction.
type ParamsOption func(*Params) error

// WithSubtype sets the Argon2 variant for new hashes.
func WithSubtype(s Subtype) ParamsOption {
	return func(p *Params) error {
		if !s.Valid() {
			return fmt.Errorf("%w: unknown subtype %d", ErrInvalidConfiguration, s)
		}
		p.Subtype = s
		return nil
	}
}

// WithMemory sets the memory cost. The size accepts a plain byte count
// ("268435456") or a k/M/G suffixed shorthand ("256M").
func WithMemory(size string) ParamsOption {
	return func(p *Params) error {
		bytes, err := ParseMemorySize(size)
		if err != nil {
			return err
		}
		p.Memory = bytes
		return nil
	}
}

// WithIterations sets the time cost.
func WithIterations(n uint32) ParamsOption {
	return func(p *Params) error {
		p.Iterations = n
		return nil
	}
}

// WithParallelism sets the lane count.
func WithParallelism(n uint8) ParamsOption {
	return func(p *Params) error {
		p.Parallelism = n
		return nil
	}
}

// WithKeyLength sets the digest length in bytes.
func WithKeyLength(n uint32) ParamsOption {
	return func(p *Params) error {
		p.KeyLength = n
		return nil
	}
}

// WithSaltLength sets the salt length in bytes.
func WithSaltLength(n uint32) ParamsOption {
	return func(p *Params) error {
		p.SaltLength = n
		return nil
	}
}

// NewParams builds a cost profile from the defaults and the given options,
// then validates it. Returns an error wrapping ErrInvalidConfiguration when
// an option or the resulting profile is invalid.
func NewParams(opts ...ParamsOption) (*Params, error) {
	defaultMemory, err := ParseMemorySize(DefaultMemory)
	if err != nil {
		return nil, err
	}

	p := &Params{
		Subtype:     DefaultSubtype,
		Memory:      defaultMemory,
		Iterations:  DefaultIterations,
		Parallelism: DefaultParallelism,
		KeyLength:   DefaultKeyLength,
		SaltLength:  DefaultSaltLength,
	}

	for i, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("invalid option %d: %w", i+1, err)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: cost profile validation failed: %w", ErrInvalidConfiguration, err)
	}

	return p, nil
}

// Validate checks that the cost profile is usable. Failures are collected
// per field into an errsx.Map.
func (p *Params) Validate() error {
	errs := errsx.Map{}

	if !p.Subtype.Valid() {
		errs.Set("subtype", fmt.Errorf("unknown subtype %d", p.Subtype))
	}

	if p.Memory == 0 {
		errs.Set("memory", fmt.Errorf("memory must be positive"))
	} else if p.Memory%1024 != 0 {
		errs.Set("memory", fmt.Errorf("memory must be a multiple of 1024 bytes, got %d", p.Memory))
	} else if p.Parallelism > 0 && p.Memory < 8*1024*uint32(p.Parallelism) {
		errs.Set("memory", fmt.Errorf("memory must be at least 8 KiB per lane, got %d bytes for %d lanes", p.Memory, p.Parallelism))
	}

	if p.Iterations < 1 {
		errs.Set("iterations", fmt.Errorf("iterations must be at least 1, got %d", p.Iterations))
	}

	if p.Parallelism < 1 {
		errs.Set("parallelism", fmt.Errorf("parallelism must be at least 1, got %d", p.Parallelism))
	}

	if p.KeyLength < 1 {
		errs.Set("keyLength", fmt.Errorf("key length must be at least 1 byte, got %d", p.KeyLength))
	}

	if p.SaltLength < 1 {
		errs.Set("saltLength", fmt.Errorf("salt length must be at least 1 byte, got %d", p.SaltLength))
	}

	return errs.AsError()
}

// memoryKiB returns the memory cost in KiB as carried by the wire format.
func (p *Params) memoryKiB() uint32 {
	return p.Memory / 1024
}

// ParseMemorySize converts a memory size string to a byte count. A bare
// number is taken as bytes; a trailing k, M, or G scales by 2^10, 2^20, or
// 2^30. Both cases are accepted for the suffix.
func ParseMemorySize(size string) (uint32, error) {
	s := strings.TrimSpace(size)
	if s == "" {
		return 0, fmt.Errorf("%w: memory size is empty", ErrInvalidConfiguration)
	}

	var scale uint64 = 1
	switch s[len(s)-1] {
	case 'k', 'K':
		scale = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		scale = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		scale = 1 << 30
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid memory size %q: %w", ErrInvalidConfiguration, size, err)
	}

	bytes := n * scale
	if n != 0 && bytes/n != scale || bytes > math.MaxUint32 {
		return 0, fmt.Errorf("%w: memory size %q exceeds the %d byte limit", ErrInvalidConfiguration, size, uint64(math.MaxUint32))
	}

	return uint32(bytes), nil
}
