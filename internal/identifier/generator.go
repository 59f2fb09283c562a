// Package identifier mints random alphanumeric identifiers that are unique
// within a table/column scope.
package identifier

import (
	"crypto/rand"
	"errors"
	"io"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// maxUnbiased is the largest multiple of len(alphabet) that fits in a byte.
// Bytes at or above it are rejected so every symbol is equally likely.
const maxUnbiased = 256 - 256%len(alphabet)

// ErrInvalidLength is returned when a non-positive length is requested.
var ErrInvalidLength = errors.New("identifier: length must be positive")

// Generator produces random alphanumeric strings.
type Generator interface {
	Generate(length int) (string, error)
}

// RandomGenerator draws from crypto/rand unless Source is set.
type RandomGenerator struct {
	Source io.Reader
}

// Generate returns length characters from [0-9a-zA-Z].
func (g RandomGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}
	src := g.Source
	if src == nil {
		src = rand.Reader
	}
	out := make([]byte, 0, length)
	buf := make([]byte, length+length/4+1)
	for len(out) < length {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
