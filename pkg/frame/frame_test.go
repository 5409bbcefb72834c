package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() Record {
	return Record{
		"carat": 1.0, "cut": "Ideal", "color": "H", "clarity": "SI1",
		"depth": 61.5, "table": 55.0, "x": 6.3, "y": 6.54, "z": 4.0,
	}
}

func TestDummiesExpandsCategoricals(t *testing.T) {
	f, cerr := Dummies([]Record{sampleRecord()}, false)
	require.Nil(t, cerr)

	require.Equal(t, 1, f.Rows())
	assert.Contains(t, f.Columns(), "cut_Ideal")
	assert.Contains(t, f.Columns(), "color_H")
	assert.Contains(t, f.Columns(), "clarity_SI1")
	assert.Contains(t, f.Columns(), "carat")

	assert.Equal(t, 1.0, f.At(0, "cut_Ideal"))
	assert.Equal(t, 61.5, f.At(0, "depth"))
}

func TestDummiesIndicatorsPerBatchValue(t *testing.T) {
	records := []Record{
		{"carat": 0.5, "cut": "Ideal"},
		{"carat": 1.2, "cut": "Premium"},
	}
	f, cerr := Dummies(records, false)
	require.Nil(t, cerr)

	assert.Equal(t, []string{"carat", "cut_Ideal", "cut_Premium"}, f.Columns())
	assert.Equal(t, 1.0, f.At(0, "cut_Ideal"))
	assert.Equal(t, 0.0, f.At(0, "cut_Premium"))
	assert.Equal(t, 1.0, f.At(1, "cut_Premium"))
}

func TestDummiesDropFirst(t *testing.T) {
	records := []Record{
		{"cut": "Fair"},
		{"cut": "Good"},
		{"cut": "Ideal"},
	}
	f, cerr := Dummies(records, true)
	require.Nil(t, cerr)

	// "Fair" sorts first and becomes the reference category.
	assert.Equal(t, []string{"cut_Good", "cut_Ideal"}, f.Columns())
	assert.Equal(t, 0.0, f.At(0, "cut_Good"))
	assert.Equal(t, 0.0, f.At(0, "cut_Ideal"))
	assert.Equal(t, 1.0, f.At(1, "cut_Good"))
	assert.Equal(t, 1.0, f.At(2, "cut_Ideal"))
}

func TestDummiesMixedTypesRejected(t *testing.T) {
	scenarios := []struct {
		name    string
		records []Record
	}{
		{
			name:    "string then number",
			records: []Record{{"carat": "heavy"}, {"carat": 1.0}},
		},
		{
			name:    "number then string",
			records: []Record{{"carat": 1.0}, {"carat": "heavy"}},
		},
	}
	for _, scenario := range scenarios {
		t.Run(scenario.name, func(t *testing.T) {
			_, cerr := Dummies(scenario.records, false)
			require.NotNil(t, cerr)
		})
	}
}

func TestDummiesMissingAttributesZeroFill(t *testing.T) {
	records := []Record{
		{"carat": 0.23, "cut": "Ideal", "color": "E"},
	}
	f, cerr := Dummies(records, false)
	require.Nil(t, cerr)

	require.Equal(t, 1, f.Rows())
	assert.Contains(t, f.Columns(), "carat")
	assert.Equal(t, 0.23, f.At(0, "carat"))
}

func TestAlignReindexesOntoTrainingColumns(t *testing.T) {
	training := []string{"carat", "depth", "cut_Good", "cut_Ideal", "color_E"}

	f, cerr := Dummies([]Record{{"carat": 1.0, "cut": "Ideal", "color": "E"}}, false)
	require.Nil(t, cerr)

	aligned := Align(f, training)
	assert.Equal(t, training, aligned.Columns())
	assert.Equal(t, 1.0, aligned.At(0, "carat"))
	assert.Equal(t, 1.0, aligned.At(0, "cut_Ideal"))
	assert.Equal(t, 1.0, aligned.At(0, "color_E"))
	// Missing from the batch: zero-filled.
	assert.Equal(t, 0.0, aligned.At(0, "depth"))
	assert.Equal(t, 0.0, aligned.At(0, "cut_Good"))
}

func TestAlignDropsUnseenCategoricalSilently(t *testing.T) {
	training := []string{"carat", "cut_Good", "cut_Ideal"}

	// "Superb" was never seen at training time; its indicator is dropped
	// without an error and the output shape is unchanged.
	f, cerr := Dummies([]Record{{"carat": 1.0, "cut": "Superb"}}, false)
	require.Nil(t, cerr)
	require.Contains(t, f.Columns(), "cut_Superb")

	aligned := Align(f, training)
	assert.Equal(t, training, aligned.Columns())
	assert.Equal(t, 0.0, aligned.At(0, "cut_Good"))
	assert.Equal(t, 0.0, aligned.At(0, "cut_Ideal"))
}

func TestAlignIdempotent(t *testing.T) {
	training := []string{"carat", "depth", "cut_Ideal"}

	f, cerr := Dummies([]Record{sampleRecord()}, false)
	require.Nil(t, cerr)

	once := Align(f, training)
	twice := Align(once, training)
	assert.True(t, once.Equal(twice))
}

func TestSelect(t *testing.T) {
	f, cerr := Dummies([]Record{
		{"carat": 1.0},
		{"carat": 2.0},
		{"carat": 3.0},
	}, false)
	require.Nil(t, cerr)

	subset := f.Select([]int{2, 0})
	require.Equal(t, 2, subset.Rows())
	assert.Equal(t, 3.0, subset.At(0, "carat"))
	assert.Equal(t, 1.0, subset.At(1, "carat"))
}

func TestMatrixFollowsColumnOrder(t *testing.T) {
	f := New([]string{"a", "b"}, 2)
	f.Set(0, "a", 1)
	f.Set(0, "b", 2)
	f.Set(1, "a", 3)
	f.Set(1, "b", 4)

	m := f.Matrix()
	rows, cols := m.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 2, cols)
	assert.Equal(t, 1.0, m.At(0, 0))
	assert.Equal(t, 4.0, m.At(1, 1))
}
