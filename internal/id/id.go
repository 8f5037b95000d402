// Package id generates prefixed NanoID identifiers.
package id

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the entity kinds the server creates.
const (
	PrefixUser  = "user"
	PrefixBook  = "book"
	PrefixToken = "tok"
)

// nanoidLength matches the NanoID default.
const nanoidLength = 21

// Generate creates an identifier of the form prefix-nanoid,
// e.g. "book-V1StGXR8_Z5jdHi6B-myT".
func Generate(prefix string) (string, error) {
	id, err := gonanoid.New(nanoidLength)
	if err != nil {
		return "", fmt.Errorf("generate nanoid: %w", err)
	}
	return prefix + "-" + id, nil
}

// MustGenerate is like Generate but panics if ID generation fails.
func MustGenerate(prefix string) string {
	id, err := Generate(prefix)
	if err != nil {
		panic(fmt.Sprintf("failed to generate ID: %v", err))
	}
	return id
}

// HasPrefix reports whether id was generated with prefix and has the
// expected length. It does not check that the entity exists.
func HasPrefix(id, prefix string) bool {
	rest, ok := strings.CutPrefix(id, prefix+"-")
	return ok && len(rest) == nanoidLength
}
