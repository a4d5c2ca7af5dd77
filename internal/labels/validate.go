package labels

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MaxClassCode is the largest class code a uint8 label volume can hold.
const MaxClassCode = 255

var ErrInvalid = errors.New("invalid label configuration")

//go:embed schema/*.json
var schemaFS embed.FS

var (
	schemaOnce    sync.Once
	datasetSchema *jsonschema.Schema
	mapSchema     *jsonschema.Schema
	schemaErr     error
)

func compile(name string) (*jsonschema.Schema, error) {
	b, err := schemaFS.ReadFile("schema/" + name)
	if err != nil {
		return nil, err
	}
	return jsonschema.CompileString(name, string(b))
}

func schemas() (ds, lm *jsonschema.Schema, err error) {
	schemaOnce.Do(func() {
		datasetSchema, schemaErr = compile("dataset.schema.json")
		if schemaErr == nil {
			mapSchema, schemaErr = compile("labelmap.schema.json")
		}
	})
	return datasetSchema, mapSchema, schemaErr
}

func validateSchema(sch *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// ParseDataset decodes and validates a dataset description.
func ParseDataset(data []byte) (*Dataset, error) {
	sch, _, err := schemas()
	if err != nil {
		return nil, err
	}
	if err := validateSchema(sch, data); err != nil {
		return nil, err
	}
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := ds.Validate(); err != nil {
		return nil, err
	}
	return &ds, nil
}

// ParseLabelMap decodes and structurally validates a label map. Targets are
// checked against a dataset with LabelMap.Validate.
func ParseLabelMap(data []byte) (LabelMap, error) {
	_, sch, err := schemas()
	if err != nil {
		return nil, err
	}
	if err := validateSchema(sch, data); err != nil {
		return nil, err
	}
	var lm LabelMap
	if err := json.Unmarshal(data, &lm); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return lm, nil
}

// Validate checks the label table: background is class 0, codes fit in a
// uint8, names are unique and the region order only names defined codes.
func (d *Dataset) Validate() error {
	var problems []error
	if len(d.ChannelNames) == 0 {
		problems = append(problems, errors.New("no channel names"))
	}

	bg, ok := d.Label(Background)
	switch {
	case !ok:
		problems = append(problems, errors.New("missing background label"))
	case bg.Region || len(bg.Classes) != 1 || bg.Classes[0] != 0:
		problems = append(problems, fmt.Errorf("background must be class 0, got %v", bg.Classes))
	}

	names := map[string]bool{}
	for _, l := range d.Labels {
		if names[l.Name] {
			problems = append(problems, fmt.Errorf("duplicate label %q", l.Name))
		}
		names[l.Name] = true
		if len(l.Classes) == 0 {
			problems = append(problems, fmt.Errorf("label %q has no classes", l.Name))
		}
		if !l.Region && len(l.Classes) > 1 {
			problems = append(problems, fmt.Errorf("label %q has %d classes but is not a region", l.Name, len(l.Classes)))
		}
		for _, c := range l.Classes {
			if c < 0 || c > MaxClassCode {
				problems = append(problems, fmt.Errorf("label %q: class %d outside 0..%d", l.Name, c, MaxClassCode))
			}
		}
	}

	defined := d.definedCodes()
	seen := map[int]bool{}
	for _, c := range d.RegionsClassOrder {
		if !defined[c] {
			problems = append(problems, fmt.Errorf("regions_class_order: class %d is not defined", c))
		}
		if seen[c] {
			problems = append(problems, fmt.Errorf("regions_class_order: class %d listed twice", c))
		}
		seen[c] = true
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(problems...))
	}
	return nil
}

// Validate checks that sources are unique and every target is a class of ds.
func (m LabelMap) Validate(ds *Dataset) error {
	var problems []error
	defined := ds.definedCodes()
	seen := map[int]bool{}
	for _, e := range m {
		if e.Source < 0 {
			problems = append(problems, fmt.Errorf("negative source %d", e.Source))
		}
		if seen[e.Source] {
			problems = append(problems, fmt.Errorf("source %d mapped twice", e.Source))
		}
		seen[e.Source] = true
		if !defined[e.Target] {
			problems = append(problems, fmt.Errorf("source %d: target class %d is not defined", e.Source, e.Target))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(problems...))
	}
	return nil
}

func (d *Dataset) definedCodes() map[int]bool {
	out := map[int]bool{}
	for _, l := range d.Labels {
		for _, c := range l.Classes {
			out[c] = true
		}
	}
	return out
}

// sortedCodes returns the defined non-background codes in ascending order.
func (d *Dataset) sortedCodes() []int {
	var out []int
	for c := range d.definedCodes() {
		if c != 0 {
			out = append(out, c)
		}
	}
	slices.Sort(out)
	return out
}
