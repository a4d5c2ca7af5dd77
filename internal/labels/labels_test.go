package labels

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const step1JSON = `{
    "channel_names": {
        "0": "MRI"
    },
    "labels": {
        "background": 0,
        "disc": [
            1,
            2
        ],
        "disc_C2_C3": 2,
        "cord": 3
    },
    "regions_class_order": [
        1,
        2,
        3
    ],
    "numTraining": 0,
    "file_ending": ".nii.gz",
    "overwrite_image_reader_writer": "NibabelIOWithReorient"
}
`

func TestDataset_RoundTripKeepsOrder(t *testing.T) {
	ds, err := ParseDataset([]byte(step1JSON))
	require.NoError(t, err)

	assert.Equal(t, []string{"MRI"}, ds.ChannelNames)
	require.Len(t, ds.Labels, 4)
	assert.Equal(t, Label{Name: "disc", Classes: []int{1, 2}, Region: true}, ds.Labels[1])
	assert.Equal(t, Label{Name: "cord", Classes: []int{3}}, ds.Labels[3])
	require.Len(t, ds.Extra, 1)

	out, err := encode(ds)
	require.NoError(t, err)
	assert.Equal(t, step1JSON, string(out))
}

func TestParseDataset_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"labels not object", `{"channel_names":{"0":"MRI"},"labels":[],"file_ending":".nii.gz"}`},
		{"no background", `{"channel_names":{"0":"MRI"},"labels":{"cord":1},"file_ending":".nii.gz"}`},
		{"background not zero", `{"channel_names":{"0":"MRI"},"labels":{"background":1},"file_ending":".nii.gz"}`},
		{"code too large", `{"channel_names":{"0":"MRI"},"labels":{"background":0,"cord":256},"file_ending":".nii.gz"}`},
		{"string code", `{"channel_names":{"0":"MRI"},"labels":{"background":0,"cord":"1"},"file_ending":".nii.gz"}`},
		{"undefined region", `{"channel_names":{"0":"MRI"},"labels":{"background":0,"cord":1},"regions_class_order":[1,2],"file_ending":".nii.gz"}`},
		{"repeated region", `{"channel_names":{"0":"MRI"},"labels":{"background":0,"cord":1},"regions_class_order":[1,1],"file_ending":".nii.gz"}`},
		{"duplicate key", `{"channel_names":{"0":"MRI"},"labels":{"background":0,"cord":1,"cord":2},"file_ending":".nii.gz"}`},
		{"channel gap", `{"channel_names":{"0":"MRI","2":"x"},"labels":{"background":0},"file_ending":".nii.gz"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDataset([]byte(tt.json))
			assert.Error(t, err)
		})
	}
}

func TestLabelMap_RoundTripKeepsOrder(t *testing.T) {
	src := []byte(`{"101": 1, "64": 2, "1": 3}`)
	lm, err := ParseLabelMap(src)
	require.NoError(t, err)
	assert.Equal(t, LabelMap{{101, 1}, {64, 2}, {1, 3}}, lm)

	out, err := json.Marshal(lm)
	require.NoError(t, err)
	assert.Equal(t, `{"101":1,"64":2,"1":3}`, string(out))

	_, err = ParseLabelMap([]byte(`{"a": 1}`))
	assert.ErrorIs(t, err, ErrInvalid)
	_, err = ParseLabelMap([]byte(`{"1": 1.5}`))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLabelMap_Validate(t *testing.T) {
	ds, _, err := Preset(Step1)
	require.NoError(t, err)

	assert.NoError(t, LabelMap{{1, 9}}.Validate(ds))
	assert.ErrorIs(t, LabelMap{{1, 42}}.Validate(ds), ErrInvalid)
	assert.ErrorIs(t, LabelMap{{1, 9}, {1, 8}}.Validate(ds), ErrInvalid)
}

func TestPresets(t *testing.T) {
	tests := []struct {
		step     Step
		channels []string
		ldh      int
		size     int
	}{
		{Step1, []string{"MRI"}, 10, 51},
		{Step2, []string{"MRI", "noNorm"}, 12, 51},
	}
	for _, tt := range tests {
		t.Run(tt.step.String(), func(t *testing.T) {
			ds, lm, err := Preset(tt.step)
			require.NoError(t, err)
			require.NoError(t, ds.Validate())
			require.NoError(t, lm.Validate(ds))

			assert.Equal(t, tt.channels, ds.ChannelNames)
			code, err := ds.ClassOf(LDH)
			require.NoError(t, err)
			assert.Equal(t, tt.ldh, code)
			assert.Equal(t, tt.ldh, ds.RegionsClassOrder[len(ds.RegionsClassOrder)-1])
			assert.Len(t, lm, tt.size)

			target, ok := lm.Lookup(LDHSource)
			require.True(t, ok)
			assert.Equal(t, tt.ldh, target)
			assert.Equal(t, LDHSource, lm[len(lm)-1].Source)
		})
	}

	_, _, err := Preset(3)
	assert.ErrorIs(t, err, ErrUnknownStep)
}

func TestPrependClass(t *testing.T) {
	ds, err := ParseDataset([]byte(step1JSON))
	require.NoError(t, err)
	lm := LabelMap{{64, 1}, {63, 2}, {1, 3}}

	gotDS, gotLM, err := PrependClass(ds, lm, LDH, LDHSource)
	require.NoError(t, err)

	var names []string
	for _, l := range gotDS.Labels {
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"background", "LDH", "disc", "disc_C2_C3", "cord"}, names)
	assert.Equal(t, []int{2, 3}, gotDS.Labels[2].Classes)
	assert.True(t, gotDS.Labels[2].Region)
	assert.Equal(t, []int{3}, gotDS.Labels[3].Classes)
	assert.Equal(t, []int{1, 2, 3, 4}, gotDS.RegionsClassOrder)
	assert.Equal(t, LabelMap{{101, 1}, {64, 2}, {63, 3}, {1, 4}}, gotLM)
	require.NoError(t, gotLM.Validate(gotDS))

	// inputs untouched
	assert.Equal(t, []int{1, 2}, ds.Labels[1].Classes)
	assert.Equal(t, LabelMap{{64, 1}, {63, 2}, {1, 3}}, lm)

	_, _, err = PrependClass(gotDS, gotLM, LDH, 102)
	assert.ErrorIs(t, err, ErrLabelExists)
	_, _, err = PrependClass(ds, lm, "other", 64)
	assert.ErrorIs(t, err, ErrSourceTaken)
}

func TestOrdering(t *testing.T) {
	ds, _, err := Preset(Step2)
	require.NoError(t, err)

	assert.True(t, MoveClassFirst(ds, 12))
	assert.Equal(t, []int{12, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, ds.RegionsClassOrder)
	assert.False(t, MoveClassFirst(ds, 99))

	RestoreAscendingOrder(ds)
	assert.Equal(t, seq(1, 12), ds.RegionsClassOrder)
}

func TestParseStep(t *testing.T) {
	s, err := ParseStep("step2")
	require.NoError(t, err)
	assert.Equal(t, Step2, s)
	s, err = ParseStep("1")
	require.NoError(t, err)
	assert.Equal(t, Step1, s)
	_, err = ParseStep("3")
	assert.ErrorIs(t, err, ErrUnknownStep)
}

func TestResources_Workflow(t *testing.T) {
	res := Resources{Root: t.TempDir()}
	require.NoError(t, res.WritePresets())
	assert.FileExists(t, res.DatasetPath(Step1))
	assert.FileExists(t, res.LabelMapPath(Step2))

	changed, err := res.Reorder(LDH, true)
	require.NoError(t, err)
	assert.Equal(t, []Step{Step1, Step2}, changed)
	ds, err := res.LoadDataset(Step1)
	require.NoError(t, err)
	assert.Equal(t, 10, ds.RegionsClassOrder[0])

	// running again is a no-op
	changed, err = res.Reorder(LDH, true)
	require.NoError(t, err)
	assert.Empty(t, changed)

	changed, err = res.Reorder(LDH, false)
	require.NoError(t, err)
	assert.Len(t, changed, 2)
	ds, err = res.LoadDataset(Step2)
	require.NoError(t, err)
	assert.Equal(t, seq(1, 12), ds.RegionsClassOrder)

	// presets already carry LDH
	err = res.Prepend(LDH, LDHSource)
	assert.ErrorIs(t, err, ErrLabelExists)

	require.NoError(t, res.Prepend("fracture", 120))
	ds, err = res.LoadDataset(Step1)
	require.NoError(t, err)
	code, err := ds.ClassOf("fracture")
	require.NoError(t, err)
	assert.Equal(t, 1, code)
	code, err = ds.ClassOf(LDH)
	require.NoError(t, err)
	assert.Equal(t, 11, code)
	_, err = ds.ClassOf("fractur")
	assert.EqualError(t, err, `unknown label "fractur", did you mean "fracture"?`)
	lm, err := res.LoadLabelMap(Step1)
	require.NoError(t, err)
	assert.Equal(t, Mapping{120, 1}, lm[0])
}

func TestResources_MissingFiles(t *testing.T) {
	res := Resources{Root: t.TempDir()}
	_, err := res.LoadDataset(Step1)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Error(t, res.Prepend(LDH, LDHSource))
}
