package labels

import (
	"errors"
	"fmt"
	"slices"

	"github.com/mrsinham/spineprep/internal/util"
)

var (
	ErrLabelExists = errors.New("label already defined")
	ErrSourceTaken = errors.New("source value already mapped")
	ErrNoSuchClass = errors.New("class not in regions_class_order")
)

// PrependClass inserts a new class 1 named name, fed by raw value source.
// Every other class code and map target moves up by one, background stays
// 0 and the region order becomes ascending. ds and lm are not modified.
func PrependClass(ds *Dataset, lm LabelMap, name string, source int) (*Dataset, LabelMap, error) {
	if _, ok := ds.Label(name); ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrLabelExists, name)
	}
	if _, ok := lm.Lookup(source); ok {
		return nil, nil, fmt.Errorf("%w: %d", ErrSourceTaken, source)
	}

	out := *ds
	out.Labels = []Label{{Name: Background, Classes: []int{0}}, {Name: name, Classes: []int{1}}}
	for _, l := range ds.Labels {
		if l.Name == Background {
			continue
		}
		shifted := Label{Name: l.Name, Region: l.Region, Classes: make([]int, len(l.Classes))}
		for i, c := range l.Classes {
			shifted.Classes[i] = shift(c)
		}
		out.Labels = append(out.Labels, shifted)
	}
	out.RegionsClassOrder = out.sortedCodes()

	outMap := make(LabelMap, 0, len(lm)+1)
	outMap = append(outMap, Mapping{Source: source, Target: 1})
	for _, e := range lm {
		outMap = append(outMap, Mapping{Source: e.Source, Target: shift(e.Target)})
	}

	if err := out.Validate(); err != nil {
		return nil, nil, err
	}
	return &out, outMap, nil
}

func shift(c int) int {
	if c == 0 {
		return 0
	}
	return c + 1
}

// MoveClassFirst moves code to the front of the region order. It reports
// false and leaves ds alone when code is not in the order.
func MoveClassFirst(ds *Dataset, code int) bool {
	i := slices.Index(ds.RegionsClassOrder, code)
	if i < 0 {
		return false
	}
	order := make([]int, 0, len(ds.RegionsClassOrder))
	order = append(order, code)
	order = append(order, ds.RegionsClassOrder[:i]...)
	order = append(order, ds.RegionsClassOrder[i+1:]...)
	ds.RegionsClassOrder = order
	return true
}

// RestoreAscendingOrder resets the region order to every defined
// non-background class in ascending order.
func RestoreAscendingOrder(ds *Dataset) {
	ds.RegionsClassOrder = ds.sortedCodes()
}

// ClassOf resolves a label name to its class code. Region labels have no
// single code.
func (d *Dataset) ClassOf(name string) (int, error) {
	l, ok := d.Label(name)
	if !ok {
		names := make([]string, len(d.Labels))
		for i, l := range d.Labels {
			names[i] = l.Name
		}
		return 0, util.UnknownError("label", name, names)
	}
	if l.Region || len(l.Classes) != 1 {
		return 0, fmt.Errorf("label %q is a region of %v", name, l.Classes)
	}
	return l.Classes[0], nil
}
