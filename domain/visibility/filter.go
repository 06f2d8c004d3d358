package visibility

import (
	"sort"

	"clickchain/domain/telemetry"
)

// Filter is a set of selected event types. An empty filter admits every type.
type Filter struct {
	types map[telemetry.EventType]struct{}
}

// NewFilter creates a filter selecting the given types
func NewFilter(types ...telemetry.EventType) Filter {
	f := Filter{types: make(map[telemetry.EventType]struct{}, len(types))}
	for _, t := range types {
		f.types[t] = struct{}{}
	}
	return f
}

// Toggle adds or removes a type and reports whether it is now selected
func (f *Filter) Toggle(t telemetry.EventType) bool {
	if f.types == nil {
		f.types = make(map[telemetry.EventType]struct{})
	}
	if _, ok := f.types[t]; ok {
		delete(f.types, t)
		return false
	}
	f.types[t] = struct{}{}
	return true
}

// Clear deselects every type
func (f *Filter) Clear() {
	f.types = make(map[telemetry.EventType]struct{})
}

// Contains reports whether a type is selected
func (f Filter) Contains(t telemetry.EventType) bool {
	_, ok := f.types[t]
	return ok
}

// Empty reports whether no type is selected
func (f Filter) Empty() bool {
	return len(f.types) == 0
}

// Allows reports whether nodes of the type pass the filter
func (f Filter) Allows(t telemetry.EventType) bool {
	return f.Empty() || f.Contains(t)
}

// Types returns the selected types sorted
func (f Filter) Types() []telemetry.EventType {
	types := make([]telemetry.EventType, 0, len(f.types))
	for t := range f.types {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Clone returns an independent copy
func (f Filter) Clone() Filter {
	return NewFilter(f.Types()...)
}
