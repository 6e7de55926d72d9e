package vectorindex

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/scribe/internal/model"
	appErr "github.com/xxxsen/scribe/internal/pkg/errors"
)

func chunk(id string, page *int, vec ...float32) model.Chunk {
	return model.Chunk{ID: id, Text: "text of " + id, Source: "phb.pdf", Page: page, Vector: vec}
}

func TestIndexSearchOrdersByScoreThenID(t *testing.T) {
	idx := New(2)
	require.NoError(t, idx.Add(
		chunk("c", nil, 1, 0),
		chunk("a", nil, 1, 0),
		chunk("b", nil, 0, 1),
		chunk("d", nil, -1, 0),
		chunk("e", nil, 2, 2),
	))
	hits, err := idx.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.Chunk.ID)
	}
	require.Equal(t, []string{"a", "c", "e", "b", "d"}, ids)
	require.InDelta(t, 1.0, hits[0].Score, 1e-9)
	require.InDelta(t, math.Sqrt2/2, hits[2].Score, 1e-6)
	require.InDelta(t, -1.0, hits[4].Score, 1e-9)
	for i := 1; i < len(hits); i++ {
		require.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestIndexSearchLimitsToK(t *testing.T) {
	idx := New(2)
	require.NoError(t, idx.Add(chunk("a", nil, 1, 0), chunk("b", nil, 0, 1)))
	hits, err := idx.Search([]float32{1, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	hits, err = idx.Search([]float32{1, 1}, 50)
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestIndexSearchRejectsBadInput(t *testing.T) {
	idx := New(2)
	require.NoError(t, idx.Add(chunk("a", nil, 1, 0)))

	_, err := idx.Search([]float32{1, 0}, 0)
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = idx.Search([]float32{1, 0, 0}, 1)
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = idx.Search([]float32{float32(math.NaN()), 0}, 1)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestIndexEmptySearch(t *testing.T) {
	hits, err := New(3).Search([]float32{1, 2}, 5)
	require.NoError(t, err)
	require.NotNil(t, hits)
	require.Empty(t, hits)
}

func TestIndexZeroVectorScoresZero(t *testing.T) {
	idx := New(2)
	require.NoError(t, idx.Add(chunk("z", nil, 0, 0)))
	hits, err := idx.Search([]float32{1, 0}, 1)
	require.NoError(t, err)
	require.Equal(t, 0.0, hits[0].Score)
}

func TestIndexAddValidation(t *testing.T) {
	idx := New(0)
	require.NoError(t, idx.Add(chunk("a", nil, 1, 2, 3)))
	require.Equal(t, 3, idx.Dimension())

	require.ErrorIs(t, idx.Add(chunk("a", nil, 1, 2, 3)), appErr.ErrConflict)
	require.ErrorIs(t, idx.Add(chunk("b", nil, 1, 2)), appErr.ErrInvalid)
	require.ErrorIs(t, idx.Add(chunk("", nil, 1, 2, 3)), appErr.ErrInvalid)
	require.ErrorIs(t, idx.Add(chunk("c", nil, 1, float32(math.Inf(1)), 3)), appErr.ErrInvalid)
	require.Equal(t, 1, idx.Len())
}

func TestIndexAddCopiesVector(t *testing.T) {
	vec := []float32{1, 0}
	idx := New(2)
	require.NoError(t, idx.Add(model.Chunk{ID: "a", Vector: vec}))
	vec[0] = -1
	require.Equal(t, float32(1), idx.Chunks()[0].Vector[0])
}

func TestIndexMerge(t *testing.T) {
	a := New(2)
	require.NoError(t, a.Add(chunk("a", nil, 1, 0)))
	b := New(2)
	require.NoError(t, b.Add(chunk("b", nil, 0, 1)))
	require.NoError(t, a.Merge(b))
	require.NoError(t, a.Merge(New(5)))
	require.Equal(t, 2, a.Len())

	c := New(3)
	require.NoError(t, c.Add(chunk("c", nil, 0, 0, 1)))
	require.ErrorIs(t, a.Merge(c), appErr.ErrInvalid)
}

func TestCodecRoundTrip(t *testing.T) {
	idx := New(3)
	require.NoError(t, idx.Add(
		model.Chunk{ID: "p0", Text: "cover page", Source: "phb.pdf", Page: model.IntPtr(0), Offset: 0, Vector: []float32{1, 0, 0}},
		model.Chunk{ID: "np", Text: "no page", Source: "srd.pdf", Offset: 7, Vector: []float32{0, 0.5, -0.25}},
		model.Chunk{ID: "p22", Text: "Fireball: 8d6 fire damage", Source: "phb.pdf", Page: model.IntPtr(22), Offset: 3, Vector: []float32{0.1, 0.2, 0.3}},
	))
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, idx))

	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, idx.Dimension(), got.Dimension())
	require.Equal(t, idx.Chunks(), got.Chunks())
	require.NotNil(t, got.Chunks()[0].Page)
	require.Equal(t, 0, *got.Chunks()[0].Page)
	require.Nil(t, got.Chunks()[1].Page)
}

func TestCodecEmptyIndex(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, New(4)))
	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, 4, got.Dimension())
	require.Equal(t, 0, got.Len())
}

func TestCodecRejectsGarbage(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("NOPE....")))
	require.Error(t, err)

	idx := New(2)
	require.NoError(t, idx.Add(chunk("a", nil, 1, 0)))
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, idx))
	_, err = Decode(bytes.NewReader(buf.Bytes()[:buf.Len()-3]))
	require.Error(t, err)
}
