// Package labels models the segmentation label taxonomy files: the dataset
// description (label names to class codes) and the label map that turns raw
// annotation values into training classes.
//
// Both files are JSON objects whose key order is meaningful to readers, so
// the types here keep entries as ordered slices and encode them back in the
// same order with 4-space indentation.
package labels

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Background is the reserved name of class 0.
const Background = "background"

// Label is one entry of the dataset's label table. A label with Region set
// is written as a list of classes (a region made of several classes);
// otherwise it holds exactly one class.
type Label struct {
	Name    string
	Classes []int
	Region  bool
}

// Field is a top-level key this package does not interpret, kept verbatim.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Dataset is the content of a dataset_stepN.json file.
type Dataset struct {
	// ChannelNames are indexed by position; channel "0" comes first.
	ChannelNames      []string
	Labels            []Label
	RegionsClassOrder []int
	NumTraining       int
	FileEnding        string
	Extra             []Field
}

// Label returns the label with the given name.
func (d *Dataset) Label(name string) (Label, bool) {
	for _, l := range d.Labels {
		if l.Name == name {
			return l, true
		}
	}
	return Label{}, false
}

// Classes returns the codes of the single-class labels in table order.
func (d *Dataset) Classes() []int {
	var out []int
	for _, l := range d.Labels {
		if !l.Region && len(l.Classes) == 1 {
			out = append(out, l.Classes[0])
		}
	}
	return out
}

// MaxClass is the largest code referenced anywhere in the label table.
func (d *Dataset) MaxClass() int {
	m := 0
	for _, l := range d.Labels {
		for _, c := range l.Classes {
			m = max(m, c)
		}
	}
	return m
}

func (d Dataset) MarshalJSON() ([]byte, error) {
	var obj orderedObject
	channels := orderedObject{}
	for i, name := range d.ChannelNames {
		channels.add(strconv.Itoa(i), name)
	}
	obj.add("channel_names", channels)

	lbls := orderedObject{}
	for _, l := range d.Labels {
		if l.Region {
			lbls.add(l.Name, l.Classes)
		} else if len(l.Classes) == 1 {
			lbls.add(l.Name, l.Classes[0])
		} else {
			return nil, fmt.Errorf("label %q: single-class label has %d classes", l.Name, len(l.Classes))
		}
	}
	obj.add("labels", lbls)

	order := d.RegionsClassOrder
	if order == nil {
		order = []int{}
	}
	obj.add("regions_class_order", order)
	obj.add("numTraining", d.NumTraining)
	obj.add("file_ending", d.FileEnding)
	for _, f := range d.Extra {
		obj.add(f.Key, f.Value)
	}
	return obj.MarshalJSON()
}

func (d *Dataset) UnmarshalJSON(data []byte) error {
	*d = Dataset{}
	return eachField(data, func(key string, raw json.RawMessage) error {
		switch key {
		case "channel_names":
			return d.decodeChannels(raw)
		case "labels":
			return eachField(raw, func(name string, v json.RawMessage) error {
				l := Label{Name: name}
				if v = bytes.TrimSpace(v); len(v) > 0 && v[0] == '[' {
					l.Region = true
					if err := json.Unmarshal(v, &l.Classes); err != nil {
						return fmt.Errorf("label %q: %w", name, err)
					}
				} else {
					var c int
					if err := json.Unmarshal(v, &c); err != nil {
						return fmt.Errorf("label %q: %w", name, err)
					}
					l.Classes = []int{c}
				}
				d.Labels = append(d.Labels, l)
				return nil
			})
		case "regions_class_order":
			return json.Unmarshal(raw, &d.RegionsClassOrder)
		case "numTraining":
			return json.Unmarshal(raw, &d.NumTraining)
		case "file_ending":
			return json.Unmarshal(raw, &d.FileEnding)
		default:
			d.Extra = append(d.Extra, Field{Key: key, Value: append(json.RawMessage(nil), raw...)})
			return nil
		}
	})
}

func (d *Dataset) decodeChannels(raw json.RawMessage) error {
	byIndex := map[int]string{}
	err := eachField(raw, func(key string, v json.RawMessage) error {
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 {
			return fmt.Errorf("channel key %q is not an index", key)
		}
		var name string
		if err := json.Unmarshal(v, &name); err != nil {
			return fmt.Errorf("channel %q: %w", key, err)
		}
		byIndex[idx] = name
		return nil
	})
	if err != nil {
		return err
	}
	d.ChannelNames = make([]string, len(byIndex))
	for idx, name := range byIndex {
		if idx >= len(byIndex) {
			return fmt.Errorf("channel indices must be contiguous from 0, got %d", idx)
		}
		d.ChannelNames[idx] = name
	}
	return nil
}
