package labels

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Mapping sends one raw annotation value to a training class.
type Mapping struct {
	Source int
	Target int
}

// LabelMap is the content of a labels_maps/nnunet_stepN.json file. Entries
// keep their file order.
type LabelMap []Mapping

// Lookup returns the target class of a raw value.
func (m LabelMap) Lookup(source int) (int, bool) {
	for _, e := range m {
		if e.Source == source {
			return e.Target, true
		}
	}
	return 0, false
}

// Targets returns the distinct target classes in first-seen order.
func (m LabelMap) Targets() []int {
	seen := map[int]bool{}
	var out []int
	for _, e := range m {
		if !seen[e.Target] {
			seen[e.Target] = true
			out = append(out, e.Target)
		}
	}
	return out
}

func (m LabelMap) MarshalJSON() ([]byte, error) {
	obj := orderedObject{}
	for _, e := range m {
		obj.add(strconv.Itoa(e.Source), e.Target)
	}
	return obj.MarshalJSON()
}

func (m *LabelMap) UnmarshalJSON(data []byte) error {
	out := LabelMap{}
	err := eachField(data, func(key string, raw json.RawMessage) error {
		src, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("label map key %q is not an integer", key)
		}
		var dst int
		if err := json.Unmarshal(raw, &dst); err != nil {
			return fmt.Errorf("label map %q: %w", key, err)
		}
		out = append(out, Mapping{Source: src, Target: dst})
		return nil
	})
	if err != nil {
		return err
	}
	*m = out
	return nil
}
