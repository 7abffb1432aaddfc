// Package flagfilter computes the set of SAM flags whose records are left out
// of the coverage summary.
package flagfilter

import "strings"

// SAM FLAG bits considered by the coverage filter.
const (
	Unmapped  uint16 = 0x4
	Secondary uint16 = 0x100
	QCFailed  uint16 = 0x200
	Duplicate uint16 = 0x400
)

// Flag is one named SAM flag as understood by samtools --ff.
type Flag struct {
	Name string
	Bit  uint16
}

// canonical lists the filterable flags in the order they are rendered.
var canonical = []Flag{
	{"UNMAP", Unmapped},
	{"SECONDARY", Secondary},
	{"QCFAIL", QCFailed},
	{"DUP", Duplicate},
}

// ExclusionSet is the set of SAM flags to exclude. The zero value is empty;
// use ComputeExclusionSet.
type ExclusionSet struct {
	mask uint16
}

// ComputeExclusionSet returns {UNMAP, QCFAIL, DUP}, plus SECONDARY unless
// includeSecondary is set.
func ComputeExclusionSet(includeSecondary bool) ExclusionSet {
	mask := Unmapped | QCFailed | Duplicate
	if !includeSecondary {
		mask |= Secondary
	}
	return ExclusionSet{mask: mask}
}

// Mask returns the set as a FLAG bitmask.
func (s ExclusionSet) Mask() uint16 { return s.mask }

// Excludes reports whether a record with the given FLAG is filtered out,
// i.e. whether any excluded bit is set.
func (s ExclusionSet) Excludes(flag uint16) bool { return flag&s.mask != 0 }

// Contains reports whether the named flag is in the set.
func (s ExclusionSet) Contains(name string) bool {
	for _, f := range canonical {
		if f.Name == name {
			return s.mask&f.Bit != 0
		}
	}
	return false
}

// Names returns the flag names in canonical order.
func (s ExclusionSet) Names() []string {
	var names []string
	for _, f := range canonical {
		if s.mask&f.Bit != 0 {
			names = append(names, f.Name)
		}
	}
	return names
}

// String renders the set as the comma-joined list passed to samtools --ff.
func (s ExclusionSet) String() string {
	return strings.Join(s.Names(), ",")
}
