// Package keymaterial turns user-supplied secret key text into a canonical
// Solana signing keypair.
//
// Three encodings are accepted and tried in a fixed order:
//
//  1. a bracketed JSON array of exactly 64 integers in [0, 255], the full
//     expanded ed25519 key as exported by the Solana CLI;
//  2. a base58 string decoding to 64 bytes, an already expanded key;
//  3. a base58 string decoding to 32 bytes, a seed expanded with the
//     standard ed25519 seed expansion.
//
// Parse never logs or retains the input. Callers own the input buffer and
// should clear it once Parse returns.
package keymaterial

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Encoding identifies which textual representation a secret was given in.
type Encoding int

const (
	EncodingUnknown Encoding = iota
	EncodingJSONArray
	EncodingBase58Expanded
	EncodingBase58Seed
)

func (e Encoding) String() string {
	switch e {
	case EncodingJSONArray:
		return "json_array"
	case EncodingBase58Expanded:
		return "base58_expanded"
	case EncodingBase58Seed:
		return "base58_seed"
	default:
		return "unknown"
	}
}

const (
	expandedKeySize = ed25519.PrivateKeySize
	seedSize        = ed25519.SeedSize
)

// ErrInvalidKeyMaterial matches every *KeyParseError through errors.Is.
var ErrInvalidKeyMaterial = errors.New("invalid key material")

// KeyParseError describes why a secret could not be parsed. It reports the
// detected format and length only; secret bytes are never included.
type KeyParseError struct {
	Format Encoding
	Length int
	Reason string
}

func (e *KeyParseError) Error() string {
	return fmt.Sprintf("invalid key material (format=%s, length=%d): %s", e.Format, e.Length, e.Reason)
}

func (e *KeyParseError) Is(target error) bool {
	return target == ErrInvalidKeyMaterial
}

// Keypair is a parsed signing key and its public key.
type Keypair struct {
	PublicKey  solana.PublicKey
	PrivateKey solana.PrivateKey
	Encoding   Encoding
}

// Signer returns a callback suitable for solana.Transaction.Sign that yields
// the private key for this keypair's public key and nil for any other.
func (k *Keypair) Signer() func(solana.PublicKey) *solana.PrivateKey {
	return func(pub solana.PublicKey) *solana.PrivateKey {
		if pub.Equals(k.PublicKey) {
			return &k.PrivateKey
		}
		return nil
	}
}

// Wipe zeroes the private key in place. The keypair is unusable afterwards.
func (k *Keypair) Wipe() {
	if k == nil {
		return
	}
	clear(k.PrivateKey)
	k.PrivateKey = nil
}

// Parse decodes secret into a Keypair. Leading and trailing whitespace is
// ignored. Any failure is a *KeyParseError.
func Parse(secret []byte) (*Keypair, error) {
	text := bytes.TrimSpace(secret)
	if len(text) == 0 {
		return nil, &KeyParseError{Reason: "empty input"}
	}

	if text[0] == '[' {
		return parseJSONArray(text)
	}
	return parseBase58(text)
}

func parseJSONArray(text []byte) (*Keypair, error) {
	var values []json.Number
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	if err := dec.Decode(&values); err != nil || dec.More() {
		return nil, &KeyParseError{Format: EncodingJSONArray, Reason: "malformed array"}
	}

	if len(values) != expandedKeySize {
		return nil, &KeyParseError{
			Format: EncodingJSONArray,
			Length: len(values),
			Reason: fmt.Sprintf("expected %d elements", expandedKeySize),
		}
	}

	key := make(solana.PrivateKey, expandedKeySize)
	for i, v := range values {
		n, err := v.Int64()
		if err != nil || n < 0 || n > 255 {
			clear(key)
			return nil, &KeyParseError{
				Format: EncodingJSONArray,
				Length: len(values),
				Reason: fmt.Sprintf("element %d is not a byte value", i),
			}
		}
		key[i] = byte(n)
	}

	return expanded(key, EncodingJSONArray)
}

func parseBase58(text []byte) (*Keypair, error) {
	raw, err := base58.Decode(string(text))
	if err != nil {
		return nil, &KeyParseError{Format: EncodingUnknown, Length: len(text), Reason: "not valid base58"}
	}

	switch len(raw) {
	case expandedKeySize:
		return expanded(solana.PrivateKey(raw), EncodingBase58Expanded)
	case seedSize:
		key := ed25519.NewKeyFromSeed(raw)
		clear(raw)
		return &Keypair{
			PublicKey:  solana.PublicKeyFromBytes(key[seedSize:]),
			PrivateKey: solana.PrivateKey(key),
			Encoding:   EncodingBase58Seed,
		}, nil
	default:
		n := len(raw)
		clear(raw)
		return nil, &KeyParseError{
			Format: EncodingUnknown,
			Length: n,
			Reason: fmt.Sprintf("decoded length must be %d or %d bytes", seedSize, expandedKeySize),
		}
	}
}

// expanded validates that the public half of a 64-byte key matches the one
// derived from its seed half.
func expanded(key solana.PrivateKey, enc Encoding) (*Keypair, error) {
	derived := ed25519.NewKeyFromSeed(key[:seedSize])
	defer clear(derived)

	if !bytes.Equal(derived[seedSize:], key[seedSize:]) {
		clear(key)
		return nil, &KeyParseError{Format: enc, Length: expandedKeySize, Reason: "public key does not match seed"}
	}

	return &Keypair{
		PublicKey:  solana.PublicKeyFromBytes(key[seedSize:]),
		PrivateKey: key,
		Encoding:   enc,
	}, nil
}
