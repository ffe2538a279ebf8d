// Package randstr generates random alphanumeric strings for demo data.
// Output is not suitable for secrets.
package randstr

import (
	"math/rand/v2"
	"strings"
)

const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Generator draws characters from Alphabet with replacement.
// A Generator is not safe for concurrent use; the package-level String is.
type Generator struct {
	r *rand.Rand
}

func New(src rand.Source) *Generator {
	return &Generator{r: rand.New(src)}
}

func (g *Generator) String(n int) string {
	return build(n, g.r.IntN)
}

func String(n int) string {
	return build(n, rand.IntN)
}

func build(n int, intn func(int) int) string {
	if n <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(Alphabet[intn(len(Alphabet))])
	}
	return b.String()
}
