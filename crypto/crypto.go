package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
)

const (
	DefaultMinTimelock = 10 * time.Minute
	DefaultMaxTimelock = 48 * time.Hour
)

var (
	ErrInvalidHashlock = errors.New("hashlock must be 32 bytes (64 hex characters)")
	ErrInvalidSecret   = errors.New("secret must be 32 bytes (64 hex characters)")
)

// Commitment is a freshly generated secret together with the hashlock that
// binds both escrows of a swap.
type Commitment struct {
	Secret   lntypes.Preimage
	Hashlock lntypes.Hash
}

type Generator struct {
	minTimelock time.Duration
	maxTimelock time.Duration
	now         func() time.Time
	rand        io.Reader
}

type Option func(*Generator)

func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

func WithRandom(r io.Reader) Option {
	return func(g *Generator) {
		g.rand = r
	}
}

func NewGenerator(minTimelock, maxTimelock time.Duration, opts ...Option) (*Generator, error) {
	if minTimelock <= 0 || maxTimelock < minTimelock {
		return nil, fmt.Errorf("invalid timelock bounds [%s, %s]", minTimelock, maxTimelock)
	}

	g := &Generator{
		minTimelock: minTimelock,
		maxTimelock: maxTimelock,
		now:         time.Now,
		rand:        rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Generate returns a new 32-byte secret and its SHA-256 hashlock.
func (g *Generator) Generate() (Commitment, error) {
	var secret lntypes.Preimage
	if _, err := io.ReadFull(g.rand, secret[:]); err != nil {
		return Commitment{}, fmt.Errorf("failed to generate secret: %w", err)
	}

	return Commitment{
		Secret:   secret,
		Hashlock: secret.Hash(),
	}, nil
}

// DeriveDeadline returns now+d clamped to the configured timelock bounds.
func (g *Generator) DeriveDeadline(d time.Duration) time.Time {
	d = min(max(d, g.minTimelock), g.maxTimelock)

	return g.now().Add(d)
}

// VerifySecret reports whether sha256(secret) equals hashlock.
func VerifySecret(secret lntypes.Preimage, hashlock lntypes.Hash) bool {
	return secret.Matches(hashlock)
}

func ParseHashlock(value string) (lntypes.Hash, error) {
	raw, err := decode32(value)
	if err != nil {
		return lntypes.Hash{}, fmt.Errorf("%w: %w", ErrInvalidHashlock, err)
	}

	return lntypes.MakeHash(raw)
}

func ParseSecret(value string) (lntypes.Preimage, error) {
	raw, err := decode32(value)
	if err != nil {
		return lntypes.Preimage{}, fmt.Errorf("%w: %w", ErrInvalidSecret, err)
	}

	return lntypes.MakePreimage(raw)
}

// HashOf is sha256 over arbitrary bytes, used for identifiers.
func HashOf(data []byte) string {
	sum := sha256.Sum256(data)

	return hex.EncodeToString(sum[:])
}

func decode32(value string) ([]byte, error) {
	value = strings.TrimPrefix(strings.TrimPrefix(value, "0x"), "0X")
	if len(value) != 64 {
		return nil, fmt.Errorf("got %d characters", len(value))
	}

	return hex.DecodeString(value)
}
