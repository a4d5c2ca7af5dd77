package labels

import (
	"errors"
	"fmt"
)

// Step selects one of the two cascaded training stages.
type Step int

const (
	Step1 Step = 1
	Step2 Step = 2
)

var ErrUnknownStep = errors.New("unknown step")

// Steps lists the supported steps in order.
var Steps = []Step{Step1, Step2}

func (s Step) String() string {
	return fmt.Sprintf("step%d", int(s))
}

// ParseStep accepts "1", "2", "step1" or "step2".
func ParseStep(s string) (Step, error) {
	switch s {
	case "1", "step1":
		return Step1, nil
	case "2", "step2":
		return Step2, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStep, s)
	}
}

// LDH is the name and raw annotation value of the herniation class that
// the presets append.
const (
	LDH       = "LDH"
	LDHSource = 101
)

func single(name string, c int) Label { return Label{Name: name, Classes: []int{c}} }

func region(name string, cs ...int) Label { return Label{Name: name, Classes: cs, Region: true} }

func seq(from, to int) []int {
	out := make([]int, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, i)
	}
	return out
}

// discSources are the raw intervertebral disc values, all merged into one class.
var discSources = []int{64, 65, 66, 67, 72, 73, 74, 75, 76, 77, 78, 79, 80, 81, 82, 92, 93, 94, 95}

// vertebraSources are the raw vertebra values, in annotation order.
var vertebraSources = []int{11, 12, 13, 14, 15, 16, 17, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32, 41, 42, 43, 44, 45, 50}

// Preset returns the canonical dataset description and label map of step,
// with LDH appended as the last class.
func Preset(step Step) (*Dataset, LabelMap, error) {
	switch step {
	case Step1:
		ds, lm := presetStep1()
		return ds, lm, nil
	case Step2:
		ds, lm := presetStep2()
		return ds, lm, nil
	default:
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownStep, int(step))
	}
}

func commonMap(lm LabelMap) LabelMap {
	for _, s := range discSources {
		lm = append(lm, Mapping{Source: s, Target: 1})
	}
	return append(lm,
		Mapping{Source: 63, Target: 2},
		Mapping{Source: 71, Target: 3},
		Mapping{Source: 91, Target: 4},
		Mapping{Source: 100, Target: 5},
	)
}

func presetStep1() (*Dataset, LabelMap) {
	ds := &Dataset{
		ChannelNames: []string{"MRI"},
		Labels: []Label{
			single(Background, 0),
			region("disc", 1, 2, 3, 4, 5),
			single("disc_C2_C3", 2),
			single("disc_C7_T1", 3),
			single("disc_T12_L1", 4),
			single("disc_L5_S", 5),
			region("vertebrae", 6, 7),
			single("vertebrae_C1", 7),
			region("canal", 8, 9),
			single("cord", 9),
			single(LDH, 10),
		},
		RegionsClassOrder: seq(1, 10),
		FileEnding:        ".nii.gz",
	}

	lm := commonMap(nil)
	for _, s := range vertebraSources {
		lm = append(lm, Mapping{Source: s, Target: 6})
	}
	lm = append(lm,
		Mapping{Source: 2, Target: 8},
		Mapping{Source: 1, Target: 9},
		Mapping{Source: LDHSource, Target: 10},
	)
	return ds, lm
}

func presetStep2() (*Dataset, LabelMap) {
	ds := &Dataset{
		ChannelNames: []string{"MRI", "noNorm"},
		Labels: []Label{
			single(Background, 0),
			region("disc", 1, 2, 3, 4, 5),
			single("disc_C2_C3", 2),
			single("disc_C7_T1", 3),
			single("disc_T12_L1", 4),
			single("disc_L5_S", 5),
			region("vertebrae", 6, 7, 8, 9),
			single("vertebrae_O", 7),
			single("vertebrae_E", 8),
			single("sacrum", 9),
			region("canal", 10, 11),
			single("cord", 11),
			single(LDH, 12),
		},
		RegionsClassOrder: seq(1, 12),
		FileEnding:        ".nii.gz",
	}

	lm := commonMap(nil)
	// vertebrae alternate between vertebrae_O and vertebrae_E going down the spine
	for _, s := range []int{11, 13, 15, 17, 22, 24, 26, 28, 30, 32, 42, 44} {
		lm = append(lm, Mapping{Source: s, Target: 7})
	}
	for _, s := range []int{12, 14, 16, 21, 23, 25, 27, 29, 31, 41, 43, 45} {
		lm = append(lm, Mapping{Source: s, Target: 8})
	}
	lm = append(lm,
		Mapping{Source: 50, Target: 9},
		Mapping{Source: 2, Target: 10},
		Mapping{Source: 1, Target: 11},
		Mapping{Source: LDHSource, Target: 12},
	)
	return ds, lm
}
