// Package keys derives stable record addresses from a namespace tag and an
// owner identity.
package keys

import (
	"crypto/sha256"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Address identifies a record
type Address solana.PublicKey

// DefaultProgramID is the program address used when none is configured
var DefaultProgramID = Address(sha256.Sum256([]byte("recordvault/program")))

// maxSeedLen is the longest seed FindProgramAddress accepts
const maxSeedLen = 32

// ParseAddress decodes a base58 address
func ParseAddress(s string) (Address, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Address(pk), nil
}

// String returns the base58 form
func (a Address) String() string {
	return solana.PublicKey(a).String()
}

// Bytes returns the raw 32 bytes
func (a Address) Bytes() []byte {
	return solana.PublicKey(a).Bytes()
}

// IsZero reports whether the address is all zeros
func (a Address) IsZero() bool {
	return a == Address{}
}

// MarshalText implements encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// NewOwner returns a random owner identity
func NewOwner() (Address, error) {
	priv, err := solana.NewRandomPrivateKey()
	if err != nil {
		return Address{}, fmt.Errorf("failed to generate owner key: %w", err)
	}
	return Address(priv.PublicKey()), nil
}

// Deriver computes record addresses under one program
type Deriver struct {
	programID Address
}

// NewDeriver creates a deriver. A zero program ID selects DefaultProgramID.
func NewDeriver(programID Address) *Deriver {
	if programID.IsZero() {
		programID = DefaultProgramID
	}
	return &Deriver{programID: programID}
}

// ProgramID returns the program the addresses are derived under
func (d *Deriver) ProgramID() Address {
	return d.programID
}

// Derive returns the address for namespace and owner along with its bump seed.
// The same inputs always produce the same address.
func (d *Deriver) Derive(namespace string, owner Address) (Address, uint8, error) {
	if namespace == "" {
		return Address{}, 0, fmt.Errorf("namespace is required")
	}
	if len(namespace) > maxSeedLen {
		return Address{}, 0, fmt.Errorf("namespace %q is longer than %d bytes", namespace, maxSeedLen)
	}

	seeds := [][]byte{[]byte(namespace), owner.Bytes()}
	addr, bump, err := solana.FindProgramAddress(seeds, solana.PublicKey(d.programID))
	if err != nil {
		return Address{}, 0, fmt.Errorf("failed to derive address: %w", err)
	}
	return Address(addr), bump, nil
}
