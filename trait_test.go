package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type (
	traitA  struct{}
	traitB  struct{}
	compact struct{}
)

var (
	tagA       = TraitOf[traitA]()
	tagB       = TraitOf[traitB]()
	tagCompact = TraitOf[compact]()
)

type TraitSetTestSuite struct {
	suite.Suite
}

func (s *TraitSetTestSuite) TestDuplicateAddIsIdempotent() {
	once := NewTraitSet(tagA)
	twice := once.With(tagA)

	s.Assert().True(once.Equal(twice))
	s.Assert().Equal(once.Key(), twice.Key())
	s.Assert().Equal(1, twice.Len())
	s.Assert().Len(twice.Applied(), 2)
}

func (s *TraitSetTestSuite) TestRemovalIsOneAtATime() {
	set := NewTraitSet(tagA).With(tagA)

	set = set.Without(tagA)
	s.Assert().True(set.Has(tagA), "one application of A remains")

	set = set.Without(tagA)
	s.Assert().False(set.Has(tagA))
	s.Assert().Zero(set.Len())
}

func (s *TraitSetTestSuite) TestRemovingAbsentTagIsNoOp() {
	set := NewTraitSet(tagA)
	s.Assert().True(set.Without(tagB).Equal(set))
	s.Assert().True(TraitSet{}.Without(tagA).Equal(TraitSet{}))
}

func (s *TraitSetTestSuite) TestQueries() {
	set := NewTraitSet(tagA)

	s.Assert().True(set.Has())
	s.Assert().True(set.Has(tagA))
	s.Assert().False(set.Has(tagA, tagB), "Has is a conjunction")
	s.Assert().True(set.HasAny(tagA, tagB), "HasAny is a disjunction")
	s.Assert().False(set.HasAny(tagB))
	s.Assert().False(set.HasAny())
}

func (s *TraitSetTestSuite) TestKeyIgnoresOrder() {
	ab := NewTraitSet(tagA, tagB)
	ba := NewTraitSet(tagB, tagA, tagB)

	s.Assert().Equal(ab.Key(), ba.Key())
	s.Assert().Equal([]Trait{tagB, tagA}, ba.Tags())
	s.Assert().Empty(TraitSet{}.Key())
}

func (s *TraitSetTestSuite) TestWithDoesNotAlias() {
	base := NewTraitSet(tagA)
	left := base.With(tagB)
	right := base.With(tagCompact)

	s.Assert().True(left.Has(tagB))
	s.Assert().False(left.Has(tagCompact))
	s.Assert().True(right.Has(tagCompact))
	s.Assert().False(right.Has(tagB))
}

func (s *TraitSetTestSuite) TestConditions() {
	set := NewTraitSet(tagA)

	s.Assert().True(WhenTraits(tagA)(set))
	s.Assert().False(WhenTraits(tagA, tagB)(set))
	s.Assert().False(UnlessTraits(tagA)(set))
	s.Assert().True(UnlessTraits(tagB)(set))
}

func TestTraitSet(t *testing.T) {
	suite.Run(t, new(TraitSetTestSuite))
}

func TestArchiveViewsShareEngine(t *testing.T) {
	sizer := NewSizer()
	root := NewArchive(sizer, WithTraits(tagA))

	view := root.WithTraits(tagB)
	x := int64(1)
	view.Process(&x)
	root.Process(&x)

	assert.Equal(t, 16, sizer.Size())
	assert.True(t, view.Traits().Has(tagA, tagB))
	assert.False(t, root.Traits().Has(tagB), "views do not change their parent")

	stripped := Without[traitA](view)
	assert.False(t, Has[traitA](stripped))
	assert.True(t, Has[traitB](stripped))
	assert.True(t, Has[compact](With[compact](stripped)))
}

func TestArchiveKind(t *testing.T) {
	a := NewArchive(NewPacker(nil), WithTraits(tagB, tagA))
	k := a.Kind()

	assert.Equal(t, ModePacking, k.Mode)
	assert.Equal(t, NewTraitSet(tagA, tagB).Key(), k.Traits)
	assert.Equal(t, NewArchive(NewPacker(nil), WithTraits(tagA, tagB, tagA)).Kind(), k)
	assert.Contains(t, k.String(), "packing{")
}

// gatedRecord has two traversal functions; the compact one only runs when
// the archive carries the compact trait.
type gatedRecord struct {
	ID      uint64
	Payload []byte
}

// gatedParent forwards the compact trait to one child only.
type gatedParent struct {
	Plain   gatedRecord
	Compact gatedRecord
}

func (p *gatedParent) Serialize(a *Archive) {
	a.ProcessNamed("Plain", &p.Plain)
	With[compact](a).ProcessNamed("Compact", &p.Compact)
}

func init() {
	RegisterFunc(func(a *Archive, v *gatedRecord) {
		a.Process(&v.ID)
	}, WhenTraits(tagCompact))
	RegisterFunc(func(a *Archive, v *gatedRecord) {
		a.Process(&v.ID, &v.Payload)
	})
}

func TestTraitGatedFunctions(t *testing.T) {
	rec := gatedRecord{ID: 9, Payload: []byte{1, 2, 3}}

	full, err := GetSize(rec)
	require.NoError(t, err)
	assert.Equal(t, 8+8+3, full)

	small, err := GetSize(rec, WithTraits(tagCompact))
	require.NoError(t, err)
	assert.Equal(t, 8, small)

	out, err := Deserialize[gatedRecord](mustSerialize(t, rec, WithTraits(tagCompact)), WithTraits(tagCompact))
	require.NoError(t, err)
	assert.Equal(t, gatedRecord{ID: 9}, out)
}

func TestTraitsScopedToChild(t *testing.T) {
	p := gatedParent{
		Plain:   gatedRecord{ID: 1, Payload: []byte{7}},
		Compact: gatedRecord{ID: 2, Payload: []byte{8, 9}},
	}
	size, err := GetSize(p)
	require.NoError(t, err)
	assert.Equal(t, (8+8+1)+8, size)

	out, err := Deserialize[gatedParent](mustSerialize(t, p))
	require.NoError(t, err)
	assert.Equal(t, p.Plain, out.Plain)
	assert.Equal(t, gatedRecord{ID: 2}, out.Compact)
}

// mustSerialize packs v and returns a copy of the payload.
func mustSerialize[T any](t testing.TB, v T, opts ...Option) []byte {
	t.Helper()
	info, err := Serialize(v, opts...)
	require.NoError(t, err)
	out := append([]byte(nil), info.Bytes()...)
	require.NoError(t, info.Release())
	return out
}
