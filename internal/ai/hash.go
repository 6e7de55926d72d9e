package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashDimension = 256

type hashConfig struct {
	Dimension int `json:"dimension"`
}

// hashProvider is an offline embedder using signed feature hashing over
// lower-cased word tokens. Texts sharing words get similar vectors, which is
// enough for local demos and tests without a remote model.
type hashProvider struct {
	dimension int
}

func NewHashEmbedProvider(dimension int) IEmbedProvider {
	if dimension <= 0 {
		dimension = defaultHashDimension
	}
	return &hashProvider{dimension: dimension}
}

func (p *hashProvider) Name() string {
	return "hash"
}

func (p *hashProvider) Embed(ctx context.Context, modelName string, text string, taskType string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, p.dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		tokens = []string{text}
	}
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(p.dimension))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, p.dimension)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

func createHashEmbedFactory(args interface{}) (IEmbedProvider, error) {
	cfg := &hashConfig{}
	if args != nil {
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
	}
	return NewHashEmbedProvider(cfg.Dimension), nil
}

func init() {
	RegisterEmbed("hash", createHashEmbedFactory)
}
