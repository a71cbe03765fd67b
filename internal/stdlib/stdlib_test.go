package stdlib

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Xarvie/sptscript/internal/value"
	"github.com/Xarvie/sptscript/internal/vm"
)

func newTestVM() *vm.VM {
	v := vm.New()
	Register(v)
	return v
}

func TestCoreLenAcrossKinds(t *testing.T) {
	v := newTestVM()
	n, err := nativeLen(v, []value.Value{v.NewString("hello")})
	require.NoError(t, err)
	require.Equal(t, int64(5), n.AsInt())

	list := v.NewList(0)
	list.AsListObj().Elements = append(list.AsListObj().Elements, value.Int(1), value.Int(2), value.Int(3))
	n, err = nativeLen(v, []value.Value{list})
	require.NoError(t, err)
	require.Equal(t, int64(3), n.AsInt())
}

func TestCorePrintJoinsArgsWithSpaces(t *testing.T) {
	v := newTestVM()
	var got string
	v.SetPrintHandler(func(s string) { got = s })
	_, err := nativePrint(v, []value.Value{v.NewString("a"), value.Int(1), value.Bool(true)})
	require.NoError(t, err)
	require.Equal(t, "a 1 true", got)
}

func TestCoreNumParsesIntThenFloat(t *testing.T) {
	v := newTestVM()
	n, err := nativeNum(v, []value.Value{v.NewString("42")})
	require.NoError(t, err)
	require.True(t, n.IsInt())
	require.Equal(t, int64(42), n.AsInt())

	f, err := nativeNum(v, []value.Value{v.NewString("3.5")})
	require.NoError(t, err)
	require.True(t, f.IsFloat())
	require.InDelta(t, 3.5, f.AsFloat(), 1e-9)

	_, err = nativeNum(v, []value.Value{v.NewString("nope")})
	require.Error(t, err)
}

func TestStringHelpers(t *testing.T) {
	v := newTestVM()

	up, err := nativeUpper(v, []value.Value{v.NewString("abc")})
	require.NoError(t, err)
	require.Equal(t, "ABC", up.AsString())

	trimmed, err := nativeTrim(v, []value.Value{v.NewString("  hi  ")})
	require.NoError(t, err)
	require.Equal(t, "hi", trimmed.AsString())

	contains, err := nativeContains(v, []value.Value{v.NewString("hello world"), v.NewString("wor")})
	require.NoError(t, err)
	require.True(t, contains.AsBool())

	replaced, err := nativeReplace(v, []value.Value{v.NewString("a-b-c"), v.NewString("-"), v.NewString("_")})
	require.NoError(t, err)
	require.Equal(t, "a_b_c", replaced.AsString())
}

func TestMathSortHandlesNumbersAndStrings(t *testing.T) {
	v := newTestVM()
	list := v.NewList(0)
	list.AsListObj().Elements = append(list.AsListObj().Elements, value.Int(3), value.Int(1), value.Int(2))
	sorted, err := nativeSort(v, []value.Value{list})
	require.NoError(t, err)
	elems := sorted.AsListObj().Elements
	require.Equal(t, []int64{1, 2, 3}, []int64{elems[0].AsInt(), elems[1].AsInt(), elems[2].AsInt()})
}

func TestMathMinMaxPow(t *testing.T) {
	v := newTestVM()
	min, err := nativeMin(v, []value.Value{value.Int(5), value.Int(2)})
	require.NoError(t, err)
	require.Equal(t, int64(2), min.AsInt())

	max, err := nativeMax(v, []value.Value{value.Int(5), value.Int(2)})
	require.NoError(t, err)
	require.Equal(t, int64(5), max.AsInt())

	pow, err := nativePow(v, []value.Value{value.Float(2), value.Float(10)})
	require.NoError(t, err)
	require.InDelta(t, 1024.0, pow.AsFloat(), 1e-9)
}

func TestListIndexOfContainsReverse(t *testing.T) {
	v := newTestVM()
	list := v.NewList(0)
	list.AsListObj().Elements = append(list.AsListObj().Elements, v.NewString("a"), v.NewString("b"), v.NewString("c"))

	idx, err := nativeIndexOf(v, []value.Value{list, v.NewString("b")})
	require.NoError(t, err)
	require.Equal(t, int64(1), idx.AsInt())

	found, err := nativeListContains(v, []value.Value{list, v.NewString("z")})
	require.NoError(t, err)
	require.False(t, found.AsBool())

	reversed, err := nativeReverse(v, []value.Value{list})
	require.NoError(t, err)
	require.Equal(t, "c", reversed.AsListObj().Elements[0].AsString())
}

func TestUUIDRoundTrip(t *testing.T) {
	v := newTestVM()
	id, err := nativeUUIDv4(v, nil)
	require.NoError(t, err)

	parsed, err := nativeUUIDParse(v, []value.Value{id})
	require.NoError(t, err)
	require.Equal(t, id.AsString(), parsed.AsString())

	_, err = nativeUUIDParse(v, []value.Value{v.NewString("not-a-uuid")})
	require.Error(t, err)
}

func TestHumanizeBytesAndOrdinal(t *testing.T) {
	v := newTestVM()
	b, err := nativeHumanizeBytes(v, []value.Value{value.Int(2048)})
	require.NoError(t, err)
	require.Contains(t, b.AsString(), "kB")

	ord, err := nativeHumanizeOrdinal(v, []value.Value{value.Int(3)})
	require.NoError(t, err)
	require.Equal(t, "3rd", ord.AsString())

	require.Contains(t, FormatBytes(2048), "kB")
}

func TestCryptoKeypairSignVerifyRoundTrip(t *testing.T) {
	v := newTestVM()
	pair, err := nativeCryptoKeypair(v, nil)
	require.NoError(t, err)
	elems := pair.AsListObj().Elements
	require.Len(t, elems, 2)
	pub, priv := elems[0], elems[1]

	sig, err := nativeCryptoSign(v, []value.Value{priv, v.NewString("message")})
	require.NoError(t, err)

	ok, err := nativeCryptoVerify(v, []value.Value{pub, v.NewString("message"), sig})
	require.NoError(t, err)
	require.True(t, ok.AsBool())

	ok, err = nativeCryptoVerify(v, []value.Value{pub, v.NewString("tampered"), sig})
	require.NoError(t, err)
	require.False(t, ok.AsBool())
}

func TestCryptoScalarAddIsCommutative(t *testing.T) {
	v := newTestVM()
	a := "0100000000000000000000000000000000000000000000000000000000000000"[:64]
	b := "0200000000000000000000000000000000000000000000000000000000000000"[:64]

	sum1, err := nativeCryptoScalarAdd(v, []value.Value{v.NewString(a), v.NewString(b)})
	require.NoError(t, err)
	sum2, err := nativeCryptoScalarAdd(v, []value.Value{v.NewString(b), v.NewString(a)})
	require.NoError(t, err)
	require.Equal(t, sum1.AsString(), sum2.AsString())
}

func TestDBOpenQueryExecuteAgainstSQLiteMemory(t *testing.T) {
	v := newTestVM()
	ok, err := nativeDBConnect(v, []value.Value{v.NewString("t1"), v.NewString("sqlite://:memory:")})
	require.NoError(t, err)
	require.True(t, ok.AsBool())
	defer nativeDBClose(v, []value.Value{v.NewString("t1")})

	_, err = nativeDBExecute(v, []value.Value{
		v.NewString("t1"), v.NewString("create table items (id integer, name text)"),
	})
	require.NoError(t, err)

	affected, err := nativeDBExecute(v, []value.Value{
		v.NewString("t1"), v.NewString("insert into items (id, name) values (?, ?)"),
		value.Int(1), v.NewString("widget"),
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), affected.AsInt())

	rows, err := nativeDBQuery(v, []value.Value{v.NewString("t1"), v.NewString("select id, name from items")})
	require.NoError(t, err)
	list := rows.AsListObj().Elements
	require.Len(t, list, 1)
	row := list[0].AsMapObj()
	name, ok2 := row.Get(v.NewString("name"))
	require.True(t, ok2)
	require.Equal(t, "widget", name.AsString())
}

func TestDriverForDSNRejectsUnknownScheme(t *testing.T) {
	_, _, err := driverForDSN("ftp://somewhere")
	require.Error(t, err)

	driver, rest, err := driverForDSN("sqlite://:memory:")
	require.NoError(t, err)
	require.Equal(t, "sqlite", driver)
	require.Equal(t, ":memory:", rest)
}
