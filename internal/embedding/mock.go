package embedding

import (
	"context"
	"hash/crc32"
	"math/rand"
)

// Mock is a deterministic offline provider: each text's vector is drawn from
// a PRNG seeded with the text's checksum, so identical text always embeds to
// the identical vector. Useful for tests and dry runs without network access.
type Mock struct {
	dim int
}

func NewMock(dim int) *Mock {
	if dim <= 0 {
		dim = 768
	}
	return &Mock{dim: dim}
}

func (p *Mock) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		rng := rand.New(rand.NewSource(int64(crc32.ChecksumIEEE([]byte(t)))))
		vec := make([]float32, p.dim)
		for j := range vec {
			vec[j] = float32(rng.Float64()*2 - 1)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (p *Mock) Dim() int { return p.dim }
