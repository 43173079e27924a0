package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealPrefix = "seal"
	nonceLen   = 24
	keyLen     = 32
)

// ErrInvalidSeal signals a malformed or tampered sealed value.
var ErrInvalidSeal = errors.New("invalid sealed value")

// ArgonParams captures the Argon2id parameters embedded into each sealed value.
type ArgonParams struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLen     uint32
}

// DefaultArgonParams keeps key derivation cheap enough to run on every session load.
var DefaultArgonParams = ArgonParams{
	Memory:      19 * 1024,
	Time:        2,
	Parallelism: 1,
	SaltLen:     16,
}

// Sealer encrypts small secrets (bearer tokens) before they reach durable
// storage. Each value gets its own salt, so one passphrase serves every profile.
type Sealer struct {
	passphrase []byte
	params     ArgonParams
}

func NewSealer(passphrase string) (*Sealer, error) {
	return NewSealerWithParams(passphrase, DefaultArgonParams)
}

func NewSealerWithParams(passphrase string, params ArgonParams) (*Sealer, error) {
	trimmed := strings.TrimSpace(passphrase)
	if len(trimmed) < 12 {
		return nil, fmt.Errorf("seal passphrase must be at least 12 characters")
	}
	if params.Memory == 0 || params.Time == 0 || params.Parallelism == 0 || params.SaltLen < 8 {
		return nil, fmt.Errorf("invalid argon2 parameters")
	}
	return &Sealer{passphrase: []byte(trimmed), params: params}, nil
}

// Seal returns an encoded envelope: $seal$v=1$m=..,t=..,p=..$<salt>$<nonce+box>.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	salt := make([]byte, s.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	var nonce [nonceLen]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	key := s.deriveKey(salt, s.params)
	box := secretbox.Seal(nonce[:], plaintext, &nonce, &key)

	return fmt.Sprintf("$%s$v=1$m=%d,t=%d,p=%d$%s$%s",
		sealPrefix,
		s.params.Memory, s.params.Time, s.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(box),
	), nil
}

// Open reverses Seal. Any parse or authentication failure yields ErrInvalidSeal.
func (s *Sealer) Open(sealed string) ([]byte, error) {
	params, salt, box, err := decodeSeal(sealed)
	if err != nil {
		return nil, err
	}
	if len(box) < nonceLen+secretbox.Overhead {
		return nil, ErrInvalidSeal
	}

	var nonce [nonceLen]byte
	copy(nonce[:], box[:nonceLen])
	key := s.deriveKey(salt, params)

	plain, ok := secretbox.Open(nil, box[nonceLen:], &nonce, &key)
	if !ok {
		return nil, ErrInvalidSeal
	}
	return plain, nil
}

// IsSealed reports whether value looks like an envelope produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, "$"+sealPrefix+"$")
}

func (s *Sealer) deriveKey(salt []byte, params ArgonParams) [keyLen]byte {
	var key [keyLen]byte
	derived := argon2.IDKey(s.passphrase, salt, params.Time, params.Memory, params.Parallelism, keyLen)
	copy(key[:], derived)
	return key
}

func decodeSeal(encoded string) (ArgonParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != sealPrefix || parts[2] != "v=1" {
		return ArgonParams{}, nil, nil, ErrInvalidSeal
	}

	var params ArgonParams
	for _, token := range strings.Split(parts[3], ",") {
		keyValue := strings.SplitN(token, "=", 2)
		if len(keyValue) != 2 {
			return ArgonParams{}, nil, nil, ErrInvalidSeal
		}
		key, value := keyValue[0], keyValue[1]
		switch key {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return ArgonParams{}, nil, nil, ErrInvalidSeal
			}
			params.Memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return ArgonParams{}, nil, nil, ErrInvalidSeal
			}
			params.Time = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return ArgonParams{}, nil, nil, ErrInvalidSeal
			}
			params.Parallelism = uint8(v)
		}
	}
	if params.Memory == 0 || params.Time == 0 || params.Parallelism == 0 {
		return ArgonParams{}, nil, nil, ErrInvalidSeal
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return ArgonParams{}, nil, nil, ErrInvalidSeal
	}
	box, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return ArgonParams{}, nil, nil, ErrInvalidSeal
	}
	params.SaltLen = uint32(len(salt))

	return params, salt, box, nil
}
