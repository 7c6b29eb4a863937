package serial

import (
	"reflect"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type (
	color   uint16
	celsius float64
	pair    struct{ A, B int32 }
	grid    [4]pair
	named   struct{ Name string }

	pointPOD struct{ X, Y float32 }

	withChan struct {
		ID uint32
		C  chan int
	}

	opaqueFootprint struct {
		Fn func()
	}
)

const (
	red color = iota + 1
	green
)

// intPair traverses its fields explicitly.
type intPair struct {
	a, b int
}

func (p *intPair) Serialize(a *Archive) {
	a.ProcessNamed("a", &p.a)
	a.ProcessNamed("b", &p.b)
}

// marked is copied as raw memory because it says so.
type marked struct {
	lo, hi uint32
}

func (marked) TriviallyCopyable() {}

type registeredPOD struct{ V uint64 }

// versioned carries a format tag ahead of its value.
type versioned int32

func (v *versioned) Serialize(a *Archive) {
	tag := uint8(1)
	a.Process(&tag)
	a.Process((*int32)(v))
}

type kelvin float64

func (k *kelvin) Serialize(a *Archive) {
	unit := byte('K')
	a.Process(&unit)
	a.Process((*float64)(k))
}

// diag only keeps its leading entry.
type diag [2]float32

func (d *diag) Serialize(a *Archive) { a.Process(&d[0]) }

type markedVersion int32

func (markedVersion) TriviallyCopyable() {}
func (v *markedVersion) Serialize(a *Archive) { a.Process((*int32)(v)) }

// tier is widened to a word on the wire.
type tier uint8

func init() {
	MarkTriviallyCopyable[pointPOD]()
	RegisterFunc(func(a *Archive, v *registeredPOD) { a.Process(&v.V) })
	RegisterFunc(func(a *Archive, v *tier) {
		w := uint64(*v)
		a.Process(&w)
		*v = tier(w)
	})
}

// fatalOf runs fn and returns the *FatalError it panics with.
func fatalOf(t *testing.T, fn func()) (fe *FatalError) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a fatal error")
		var ok bool
		fe, ok = r.(*FatalError)
		require.True(t, ok, "expected *FatalError, got %T", r)
	}()
	fn()
	return nil
}

func TestCapabilityPrecedence(t *testing.T) {
	cases := []struct {
		name string
		t    reflect.Type
		want string
	}{
		{"int", reflect.TypeFor[int](), "bytes"},
		{"bool", reflect.TypeFor[bool](), "bytes"},
		{"complex", reflect.TypeFor[complex128](), "bytes"},
		{"namedFloat", reflect.TypeFor[celsius](), "bytes"},
		{"podStruct", reflect.TypeFor[pair](), "bytes"},
		{"podArray", reflect.TypeFor[grid](), "bytes"},
		{"markedInterface", reflect.TypeFor[marked](), "bytes"},
		{"markedByCall", reflect.TypeFor[pointPOD](), "bytes"},
		{"enum", reflect.TypeFor[color](), "enum"},
		{"duration", reflect.TypeFor[time.Duration](), "enum"},
		{"method", reflect.TypeFor[intPair](), "method"},
		{"namedIntMethod", reflect.TypeFor[versioned](), "method"},
		{"namedFloatMethod", reflect.TypeFor[kelvin](), "method"},
		{"namedArrayMethod", reflect.TypeFor[diag](), "method"},
		{"namedUint8Func", reflect.TypeFor[tier](), "func"},
		{"registeredFunc", reflect.TypeFor[registeredPOD](), "func"},
		{"binaryMarshaler", reflect.TypeFor[time.Time](), "func"},
		{"string", reflect.TypeFor[string](), "func"},
		{"slice", reflect.TypeFor[[]int](), "func"},
		{"map", reflect.TypeFor[map[string]int](), "func"},
		{"pointer", reflect.TypeFor[*pair](), "func"},
		{"structWithString", reflect.TypeFor[named](), "func"},
		{"chan", reflect.TypeFor[chan int](), "opaque"},
		{"func", reflect.TypeFor[func()](), "opaque"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CapabilityOf(tc.t))
		})
	}
}

func TestNamedScalarsUseOwnTraversal(t *testing.T) {
	size, err := GetSize(versioned(-7))
	require.NoError(t, err)
	assert.Equal(t, 5, size)
	data := mustSerialize(t, versioned(-7))
	assert.Equal(t, byte(1), data[0])
	v, err := Deserialize[versioned](data)
	require.NoError(t, err)
	assert.Equal(t, versioned(-7), v)

	size, err = GetSize(tier(3))
	require.NoError(t, err)
	assert.Equal(t, 8, size)
	tr, err := Deserialize[tier](mustSerialize(t, tier(3)))
	require.NoError(t, err)
	assert.Equal(t, tier(3), tr)

	size, err = GetSize(kelvin(273.15))
	require.NoError(t, err)
	assert.Equal(t, 9, size)
	data = mustSerialize(t, kelvin(273.15))
	assert.Equal(t, byte('K'), data[0])
	k, err := Deserialize[kelvin](data)
	require.NoError(t, err)
	assert.Equal(t, kelvin(273.15), k)

	size, err = GetSize(diag{1.5, 2.5})
	require.NoError(t, err)
	assert.Equal(t, 4, size)
	d, err := Deserialize[diag](mustSerialize(t, diag{1.5, 2.5}))
	require.NoError(t, err)
	assert.Equal(t, diag{1.5, 0}, d)

	// A marked type stays raw memory even when it has a traversal method.
	assert.Equal(t, "bytes", CapabilityOf(reflect.TypeFor[markedVersion]()))
	size, err = GetSize(markedVersion(9))
	require.NoError(t, err)
	assert.Equal(t, 4, size)
}

func TestTwoIntStruct(t *testing.T) {
	in := intPair{a: -3, b: 1 << 40}
	intSize := int(unsafe.Sizeof(int(0)))

	data := mustSerialize(t, in)
	require.Len(t, data, 2*intSize)
	assert.Equal(t, unsafe.Slice((*byte)(unsafe.Pointer(&in.a)), intSize), data[:intSize])
	assert.Equal(t, unsafe.Slice((*byte)(unsafe.Pointer(&in.b)), intSize), data[intSize:])

	out, err := Deserialize[intPair](data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	// Error checking frames the struct and each field with two words.
	checked, err := GetSize(in, WithErrorChecking(true))
	require.NoError(t, err)
	assert.Equal(t, 2*intSize+3*16, checked)

	out, err = Deserialize[intPair](mustSerialize(t, in, WithErrorChecking(true)), WithErrorChecking(true))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEnumRoundTrip(t *testing.T) {
	type palette struct {
		Primary   color
		Secondary color
		Timeout   time.Duration
	}
	in := palette{Primary: red, Secondary: green, Timeout: 3 * time.Second}

	size, err := GetSize(in)
	require.NoError(t, err)
	assert.Equal(t, 2+2+8, size)

	out, err := Deserialize[palette](mustSerialize(t, in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestByteCopyableRun(t *testing.T) {
	in := grid{{1, 2}, {3, 4}, {5, 6}, {7, 8}}
	data := mustSerialize(t, in)
	assert.Len(t, data, int(unsafe.Sizeof(in)))

	out, err := Deserialize[grid](data)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	m := marked{lo: 1, hi: 2}
	got, err := Deserialize[marked](mustSerialize(t, m))
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestContainersRoundTrip(t *testing.T) {
	type inner struct {
		Label string
		Vals  []float64
	}
	type document struct {
		Title    string
		Scores   map[string][]int32
		Children []inner
		Best     *inner
		Missing  *inner
		Matrix   [2][]uint8
		When     time.Time
		secret   string
		Ignored  int `serial:"-"`
	}
	in := document{
		Title:    "report",
		Scores:   map[string][]int32{"a": {1, 2}, "b": nil, "c": {3}},
		Children: []inner{{Label: "x", Vals: []float64{1.5}}, {Label: "y"}},
		Best:     &inner{Label: "best", Vals: []float64{9}},
		Matrix:   [2][]uint8{{1}, {2, 3}},
		When:     time.Date(2024, 5, 6, 7, 8, 9, 10, time.UTC),
		secret:   "unexported fields are traversed",
		Ignored:  42,
	}

	out, err := Deserialize[document](mustSerialize(t, in))
	require.NoError(t, err)

	assert.Equal(t, in.Title, out.Title)
	assert.Equal(t, map[string][]int32{"a": {1, 2}, "b": nil, "c": {3}}, out.Scores)
	assert.Equal(t, in.Children, out.Children)
	assert.Equal(t, in.Best, out.Best)
	assert.NotSame(t, in.Best, out.Best)
	assert.Nil(t, out.Missing)
	assert.Equal(t, in.Matrix, out.Matrix)
	assert.True(t, in.When.Equal(out.When))
	assert.Equal(t, in.secret, out.secret)
	assert.Zero(t, out.Ignored)
}

func TestMapPackingIsDeterministic(t *testing.T) {
	m := make(map[int]string)
	for i := range 64 {
		m[i*7%64] = string(rune('a' + i%26))
	}
	first := mustSerialize(t, m)
	for range 8 {
		assert.Equal(t, first, mustSerialize(t, m))
	}
}

func TestEmptyContainersUnpackAsNil(t *testing.T) {
	type holder struct {
		S []int
		M map[string]int
	}
	out, err := Deserialize[holder](mustSerialize(t, holder{S: []int{}, M: map[string]int{}}))
	require.NoError(t, err)
	assert.Nil(t, out.S)
	assert.Nil(t, out.M)
}

func TestNilPointerIsOneFlag(t *testing.T) {
	var p *pair
	data := mustSerialize(t, p)
	assert.Equal(t, []byte{0}, data)

	out, err := Deserialize[*pair](data)
	require.NoError(t, err)
	assert.Nil(t, out)

	data = mustSerialize(t, &pair{A: 1, B: 2})
	assert.Len(t, data, 1+8)
	out, err = Deserialize[*pair](data)
	require.NoError(t, err)
	assert.Equal(t, &pair{A: 1, B: 2}, out)
}

func TestInvalidFlag(t *testing.T) {
	_, err := Deserialize[*pair]([]byte{2, 0, 0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidFlag)
}

func TestLengthTooLarge(t *testing.T) {
	n := uint64(1 << 40)
	_, err := Deserialize[[]uint32](append(wordBytes(&n), 1, 2, 3, 4))
	assert.ErrorIs(t, err, ErrLengthTooLarge)
}

func TestLengthBoundedByElementWire(t *testing.T) {
	assert.Equal(t, 1, planOf(reflect.TypeFor[intPair]()).minWire)
	assert.Equal(t, 8, planOf(reflect.TypeFor[named]()).minWire)
	assert.Equal(t, 8, planOf(reflect.TypeFor[pair]()).minWire)

	n := uint64(10_000_000)
	_, err := Deserialize[[]intPair](wordBytes(&n))
	assert.ErrorIs(t, err, ErrLengthTooLarge)

	// One real element followed by a claim of more than the rest can hold.
	data := mustSerialize(t, []intPair{{a: 1, b: 2}})
	n = uint64(len(data))
	copy(data[:8], wordBytes(&n))
	_, err = Deserialize[[]intPair](data)
	assert.ErrorIs(t, err, ErrLengthTooLarge)

	data = mustSerialize(t, []intPair{{a: 1, b: 2}}, WithErrorChecking(true))
	n = uint64(len(data))
	copy(data[8:16], wordBytes(&n))
	_, err = Deserialize[[]intPair](data, WithErrorChecking(true))
	assert.ErrorIs(t, err, ErrLengthTooLarge)

	_, err = Deserialize[[]named](append(wordBytes(&n), 0))
	assert.ErrorIs(t, err, ErrLengthTooLarge)
}

func TestTruncatedData(t *testing.T) {
	data := mustSerialize(t, pair{A: 1, B: 2})
	_, err := Deserialize[pair](data[:len(data)-1])
	assert.ErrorIs(t, err, ErrTruncatedData)

	// A length that cannot fit in what is left is rejected before reading.
	data = mustSerialize(t, "a longer string")
	_, err = Deserialize[string](data[:len(data)-1])
	assert.ErrorIs(t, err, ErrLengthTooLarge)
}

func TestTrailingData(t *testing.T) {
	data := append(mustSerialize(t, uint32(5)), 0)
	_, err := Deserialize[uint32](data)
	require.True(t, IsSizeMismatch(err))

	var sm *SizeMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "unpack", sm.Phase)
	assert.Equal(t, 5, sm.Expected)
	assert.Equal(t, 4, sm.Actual)
}

// greedy writes an extra word only when packing.
type greedy struct{ V uint64 }

func (g *greedy) Serialize(a *Archive) {
	a.Process(&g.V)
	if a.IsPacking() {
		extra := uint64(0xFF)
		a.Process(&extra)
	}
}

// shy skips its field only when packing.
type shy struct{ V uint64 }

func (s *shy) Serialize(a *Archive) {
	if !a.IsPacking() {
		a.Process(&s.V)
	}
}

func TestAsymmetricSerializeIsSizeMismatch(t *testing.T) {
	for range 3 {
		_, err := Serialize(greedy{V: 1})
		var sm *SizeMismatchError
		require.ErrorAs(t, err, &sm)
		assert.Equal(t, "pack", sm.Phase)
		assert.Equal(t, 8, sm.Expected)
		assert.Equal(t, 16, sm.Actual)
	}

	_, err := Serialize(shy{V: 1})
	var sm *SizeMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, 8, sm.Expected)
	assert.Equal(t, 0, sm.Actual)
}

// widening packs an int32 but unpacks an int64.
type widening struct{ v int32 }

func (w *widening) Serialize(a *Archive) {
	if a.IsUnpacking() {
		var wide int64
		a.Process(&wide)
		w.v = int32(wide)
		return
	}
	a.Process(&w.v)
}

type wideningHolder struct {
	Name  string
	Field widening
}

func TestTypeMismatchCarriesPath(t *testing.T) {
	in := wideningHolder{Name: "n", Field: widening{v: 3}}

	_, err := Deserialize[wideningHolder](mustSerialize(t, in, WithErrorChecking(true)), WithErrorChecking(true))
	require.True(t, IsTypeMismatch(err))

	var tm *TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, "int64", tm.Expected)
	assert.Equal(t, "int32", tm.Got)

	msg := err.Error()
	assert.Contains(t, msg, "wideningHolder: Field (github.com/oy3o/serial.widening): int64: serial: expected type int64 got type int32")

	// Without framing the same asymmetry runs off the end of the input.
	_, err = Deserialize[wideningHolder](mustSerialize(t, in))
	assert.ErrorIs(t, err, ErrTruncatedData)
}

func TestTopLevelTypeMismatch(t *testing.T) {
	data := mustSerialize(t, int32(7), WithErrorChecking(true))
	_, err := Deserialize[uint32](data, WithErrorChecking(true))
	assert.True(t, IsTypeMismatch(err))
	assert.Contains(t, err.Error(), "expected type uint32 got type int32")
}

func TestNotPointer(t *testing.T) {
	a := NewArchive(NewSizer())
	a.Process(42)
	assert.ErrorIs(t, a.Err(), ErrNotPointer)

	var nilPtr *int
	b := NewArchive(NewSizer())
	b.Process(nilPtr)
	assert.ErrorIs(t, b.Err(), ErrNotPointer)
}

type node struct {
	V    int
	Next *node
}

func TestMaxDepth(t *testing.T) {
	cycle := &node{V: 1}
	cycle.Next = cycle

	_, err := GetSize(cycle, WithMaxDepth(64))
	assert.ErrorIs(t, err, ErrMaxDepth)

	list := &node{V: 1, Next: &node{V: 2, Next: &node{V: 3}}}
	out, err := Deserialize[*node](mustSerialize(t, list))
	require.NoError(t, err)
	assert.Equal(t, list, out)
}

func TestOpaqueIsFatalOutsideFootprint(t *testing.T) {
	fe := fatalOf(t, func() { _, _ = GetSize(withChan{ID: 1}) })
	assert.Contains(t, fe.Reason, "chan int is not serializable")
	assert.Equal(t, "serializable(T)", fe.Condition)
	assert.NotEmpty(t, fe.File)
	assert.Positive(t, fe.Line)
}

func TestOpaqueFootprintWarnsOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	v := opaqueFootprint{Fn: func() {}}
	for range 3 {
		n, err := GetMemoryFootprint(v, 0)
		require.NoError(t, err)
		assert.Equal(t, int(unsafe.Sizeof(v.Fn)), n)
	}
	assert.Equal(t, 1, logs.FilterMessageSnippet("not traversed").Len())
}
