// Package randid generates short random identifiers for scratch namespaces
// such as throwaway databases and key prefixes.
package randid

import "math/rand/v2"

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Generate returns a random string of length characters from [a-z0-9].
func Generate(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

// Name joins prefix and a random suffix of length characters with sep.
func Name(prefix, sep string, length int) string {
	return prefix + sep + Generate(length)
}
