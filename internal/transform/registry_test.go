package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	r := NewBuiltinRegistry()

	for _, name := range []string{"strip", "uppercase", "title_case", "clean_numeric_value", "round_decimal", "text.strip", "numeric.round_decimal"} {
		assert.True(t, r.Has(name), name)
	}
	assert.False(t, r.Has("numeric.strip"), "category must match")
	assert.False(t, r.Has("Strip"), "names are case sensitive")

	_, err := r.Get("missing")
	var le *LookupError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "missing", le.Name)
	assert.Equal(t, -1, le.Step)
}

func TestRegistryLastWriteWins(t *testing.T) {
	r := NewRegistry()
	before := r.Version()

	require.NoError(t, r.Register(Operation{Name: "tag", Category: CategoryUtility, Fn: func(any, Args) (any, error) { return "first", nil }}))
	require.NoError(t, r.Register(Operation{Name: "tag", Category: CategoryText, Fn: func(any, Args) (any, error) { return "second", nil }}))

	op, err := r.Get("tag")
	require.NoError(t, err)
	got, err := op.Fn("x", Args{})
	require.NoError(t, err)
	assert.Equal(t, "second", got)
	assert.Equal(t, CategoryText, op.Category)
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, before+2, r.Version())
}

func TestRegistryRejectsInvalidOperations(t *testing.T) {
	r := NewRegistry()
	fn := func(v any, _ Args) (any, error) { return v, nil }

	assert.Error(t, r.Register(Operation{Name: "", Fn: fn}))
	assert.Error(t, r.Register(Operation{Name: "Bad-Name", Fn: fn}))
	assert.Error(t, r.Register(Operation{Name: "ok"}))
	assert.Error(t, r.Register(Operation{Name: "ok", Fn: fn, Params: []Param{{}}}))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryListing(t *testing.T) {
	r := NewBuiltinRegistry()

	names := r.List()
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "vlookup_map")

	assert.Equal(t, []Category{
		CategoryConditional, CategoryDate, CategoryList, CategoryNumeric, CategoryText, CategoryUtility,
	}, r.Categories())

	for _, op := range r.ByCategory(CategoryNumeric) {
		assert.Equal(t, CategoryNumeric, op.Category)
	}
	assert.Len(t, r.Operations(), len(names))
}

func TestDescribe(t *testing.T) {
	op, err := Get("round_decimal")
	require.NoError(t, err)
	assert.Equal(t, "round_decimal(decimals=2)", Describe(*op))

	op, err = Get("replace")
	require.NoError(t, err)
	assert.Equal(t, "replace(old, new=)", Describe(*op))

	op, err = Get("coalesce")
	require.NoError(t, err)
	assert.Equal(t, "coalesce(...)", Describe(*op))
}
