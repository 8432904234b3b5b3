package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecmigrate/model"
)

func TestBuildFilters_Stringification(t *testing.T) {
	row := model.Row{
		"color":  model.Int(42),
		"hidden": model.Bool(true),
	}
	specs := []model.NamespaceFilterSpec{
		{Namespace: "color", AllowColumns: []string{"color"}, DenyColumns: []string{"hidden"}},
	}

	restricts, numeric, crowding, err := BuildFilters(row, specs, nil, "")
	require.NoError(t, err)
	require.Len(t, restricts, 1)

	// Typed values are erased into their canonical string form.
	assert.Equal(t, []string{"42"}, restricts[0].AllowList)
	assert.Equal(t, []string{"True"}, restricts[0].DenyList)
	assert.Empty(t, numeric)
	assert.Empty(t, crowding)
}

func TestBuildFilters_AbsentColumnsKeepEntry(t *testing.T) {
	row := model.Row{"other": model.String("x")}
	specs := []model.NamespaceFilterSpec{
		{Namespace: "color", AllowColumns: []string{"color"}},
	}

	restricts, _, _, err := BuildFilters(row, specs, nil, "")
	require.NoError(t, err)
	require.Len(t, restricts, 1)

	// Omission of data, not omission of the entry.
	assert.Equal(t, "color", restricts[0].Namespace)
	assert.Nil(t, restricts[0].AllowList)
	assert.Nil(t, restricts[0].DenyList)
}

func TestBuildFilters_NumericTyping(t *testing.T) {
	row := model.Row{"price": model.Int(3)}
	numeric := []model.NumericFilterSpec{
		{Namespace: "price", DataType: model.NumericFloat, SourceColumn: "price"},
	}

	_, entries, _, err := BuildFilters(row, nil, numeric, "")
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Integer source value lands in the float field, typed per the spec.
	require.NotNil(t, entries[0].ValueFloat)
	assert.Equal(t, 3.0, *entries[0].ValueFloat)
	assert.Nil(t, entries[0].ValueInt)
}

func TestBuildFilters_NumericIntRejectsFraction(t *testing.T) {
	row := model.Row{"price": model.Float(3.5)}
	numeric := []model.NumericFilterSpec{
		{Namespace: "price", DataType: model.NumericInt, SourceColumn: "price"},
	}

	_, _, _, err := BuildFilters(row, nil, numeric, "")
	assert.Error(t, err)
}

func TestBuildFilters_NumericColumnMissing(t *testing.T) {
	numeric := []model.NumericFilterSpec{
		{Namespace: "price", DataType: model.NumericFloat, SourceColumn: "price"},
	}

	_, _, _, err := BuildFilters(model.Row{}, nil, numeric, "")
	var sm *SchemaMismatchError
	require.True(t, errors.As(err, &sm))
	assert.Equal(t, "price", sm.Column)
}

func TestBuildFilters_Crowding(t *testing.T) {
	row := model.Row{"group": model.Int(7)}

	_, _, crowding, err := BuildFilters(row, nil, nil, "group")
	require.NoError(t, err)
	assert.Equal(t, "7", crowding)

	// No crowding column configured: absent, never the string "None".
	_, _, crowding, err = BuildFilters(row, nil, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "", crowding)

	_, _, _, err = BuildFilters(model.Row{}, nil, nil, "group")
	var sm *SchemaMismatchError
	assert.True(t, errors.As(err, &sm))
}

func TestBuildFilters_Deterministic(t *testing.T) {
	row := model.Row{"a": model.String("x"), "b": model.Int(1)}
	specs := []model.NamespaceFilterSpec{
		{Namespace: "first", AllowColumns: []string{"a"}},
		{Namespace: "second", DenyColumns: []string{"b"}},
	}

	r1, _, _, err := BuildFilters(row, specs, nil, "")
	require.NoError(t, err)
	r2, _, _, err := BuildFilters(row, specs, nil, "")
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	assert.Equal(t, "first", r1[0].Namespace)
	assert.Equal(t, "second", r1[1].Namespace)
}
