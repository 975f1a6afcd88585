// Package sluggen draws random short codes.
// Generators should be safe for concurrent use.
package sluggen

import (
	"crypto/rand"
	"errors"
)

// Unambiguous excludes characters that are easy to misread when a code is typed
// from a screen or printed QR label: 0 O o 1 I i l.
const Unambiguous = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghjkmnpqrstuvwxyz23456789"

// Generator generates random codes of a given length.
// Implementations should be safe for concurrent use.
type Generator interface {
	Generate(length int) (string, error)
}

type alphabetGenerator struct {
	alphabet string
	// bytes at or above limit are rejected so every symbol is equally likely.
	limit int
}

// New returns a generator drawing uniformly from alphabet.
// alphabet must contain between 2 and 256 distinct bytes.
func New(alphabet string) (Generator, error) {
	if len(alphabet) < 2 || len(alphabet) > 256 {
		return nil, errors.New("alphabet must contain between 2 and 256 characters")
	}
	seen := make(map[byte]bool, len(alphabet))
	for i := 0; i < len(alphabet); i++ {
		if seen[alphabet[i]] {
			return nil, errors.New("alphabet contains duplicate characters")
		}
		seen[alphabet[i]] = true
	}
	return &alphabetGenerator{
		alphabet: alphabet,
		limit:    256 - 256%len(alphabet),
	}, nil
}

// NewUnambiguous returns a generator over the Unambiguous alphabet.
func NewUnambiguous() Generator {
	g, err := New(Unambiguous)
	if err != nil {
		panic(err)
	}
	return g
}

// Generate returns a random string of the given length.
func (g *alphabetGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("length must be positive")
	}

	out := make([]byte, 0, length)
	buf := make([]byte, length+length/2)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= g.limit {
				continue
			}
			out = append(out, g.alphabet[int(b)%len(g.alphabet)])
			if len(out) == length {
				break
			}
		}
	}

	return string(out), nil
}
