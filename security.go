package bleperiph

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// SecurityLevel is the encryption/authentication grade of a link.
type SecurityLevel uint8

const (
	NoEncryption SecurityLevel = iota
	Encrypted
	EncryptedAuthenticated
)

var securityLevelStrings = map[SecurityLevel]string{
	NoEncryption:           "none",
	Encrypted:              "encrypted",
	EncryptedAuthenticated: "authenticated",
}

func (l SecurityLevel) String() string {
	if s, ok := securityLevelStrings[l]; ok {
		return s
	}
	return fmt.Sprintf("SecurityLevel(%d)", uint8(l))
}

// IsEncrypted reports whether the link is encrypted, with or without
// authentication.
func (l SecurityLevel) IsEncrypted() bool {
	return l == Encrypted || l == EncryptedAuthenticated
}

func (l SecurityLevel) Valid() bool {
	return l <= EncryptedAuthenticated
}

// ParseSecurityLevel accepts the names returned by String.
func ParseSecurityLevel(s string) (SecurityLevel, error) {
	for l, name := range securityLevelStrings {
		if strings.EqualFold(name, s) {
			return l, nil
		}
	}
	return NoEncryption, errors.Errorf("invalid security level %q", s)
}

func (l SecurityLevel) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, errors.Errorf("invalid security level %d", uint8(l))
	}
	return []byte(l.String()), nil
}

func (l *SecurityLevel) UnmarshalText(b []byte) error {
	v, err := ParseSecurityLevel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// LongTermKey is the 128-bit key kept after pairing, in little-endian byte
// order as carried by the security manager.
type LongTermKey [16]byte

func (k LongTermKey) String() string {
	return hex.EncodeToString(k[:])
}

// ParseLongTermKey decodes the hex form produced by String.
func ParseLongTermKey(s string) (LongTermKey, error) {
	var k LongTermKey
	b, err := hex.DecodeString(s)
	if err != nil {
		return k, errors.Wrap(err, "failed to decode long term key")
	}
	if len(b) != len(k) {
		return k, errors.Errorf("long term key must be %d bytes, got %d", len(k), len(b))
	}
	copy(k[:], b)
	return k, nil
}

// BondInfo is the credential set persisted for a bonded central.
type BondInfo struct {
	Addr     Addr
	LTK      LongTermKey
	Security SecurityLevel
}

// BondLoader is implemented by hosts that can be handed a persisted bond
// so a returning central re-encrypts without pairing again.
type BondLoader interface {
	AddBond(info BondInfo) error
}
