package value

import (
	"strings"

	"github.com/wippyai/script-bridge/errors"
)

// Args is an ordered, fixed-length argument list. It is never mutated after
// construction; With returns an extended copy.
type Args struct {
	items []Box
}

// NewArgs builds an argument list from boxes.
func NewArgs(items ...Box) Args {
	cp := make([]Box, len(items))
	copy(cp, items)
	return Args{items: cp}
}

// ArgsOf boxes each Go value with From.
func ArgsOf(vals ...any) (Args, error) {
	items := make([]Box, len(vals))
	for i, v := range vals {
		b, err := From(v)
		if err != nil {
			return Args{}, err
		}
		items[i] = b
	}
	return Args{items: items}, nil
}

// Len returns the arity.
func (a Args) Len() int { return len(a.items) }

// At returns the box at index, failing with an out-of-range error when
// index >= Len().
func (a Args) At(index int) (Box, error) {
	if index < 0 || index >= len(a.items) {
		return Box{}, errors.OutOfBounds(errors.PhaseMarshal, nil, index, len(a.items))
	}
	return a.items[index], nil
}

// With returns a copy with b appended.
func (a Args) With(b Box) Args {
	cp := make([]Box, len(a.items), len(a.items)+1)
	copy(cp, a.items)
	return Args{items: append(cp, b)}
}

// Tags returns the tag names, for diagnostics.
func (a Args) Tags() []string {
	tags := make([]string, len(a.items))
	for i, b := range a.items {
		tags[i] = b.tag.String()
	}
	return tags
}

func (a Args) String() string {
	parts := make([]string, len(a.items))
	for i, b := range a.items {
		parts[i] = b.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
