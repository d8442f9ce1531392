package align

import (
	"fmt"
	"strings"
)

// AxisMask selects which world position axes and which local orientation axes
// a Controller tracks.
type AxisMask uint8

const (
	AxisX AxisMask = 1 << iota
	AxisY
	AxisZ
	AxisForward
	AxisUp
	AxisRight
)

const (
	AllPosition = AxisX | AxisY | AxisZ
	AllRotation = AxisForward | AxisUp | AxisRight
	AllAxes     = AllPosition | AllRotation
)

var axisNames = []struct {
	name string
	mask AxisMask
}{
	{"x", AxisX},
	{"y", AxisY},
	{"z", AxisZ},
	{"forward", AxisForward},
	{"up", AxisUp},
	{"right", AxisRight},
}

var axisGroups = map[string]AxisMask{
	"all":      AllAxes,
	"position": AllPosition,
	"rotation": AllRotation,
}

// Has reports whether every axis in a is enabled.
func (m AxisMask) Has(a AxisMask) bool {
	return a != 0 && m&a == a
}

// HasRotation reports whether at least one orientation axis is enabled.
func (m AxisMask) HasRotation() bool {
	return m&AllRotation != 0
}

// HasPosition reports whether at least one position axis is enabled.
func (m AxisMask) HasPosition() bool {
	return m&AllPosition != 0
}

// Names lists the enabled axes in canonical order.
func (m AxisMask) Names() []string {
	names := make([]string, 0, len(axisNames))
	for _, a := range axisNames {
		if m.Has(a.mask) {
			names = append(names, a.name)
		}
	}
	return names
}

func (m AxisMask) String() string {
	if m == 0 {
		return "none"
	}
	return strings.Join(m.Names(), "|")
}

// ParseAxes converts axis names such as "x", "up" or the groups "position",
// "rotation" and "all" into a mask. Names are case-insensitive.
func ParseAxes(names []string) (AxisMask, error) {
	var mask AxisMask
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if group, ok := axisGroups[name]; ok {
			mask |= group
			continue
		}
		found := false
		for _, a := range axisNames {
			if a.name == name {
				mask |= a.mask
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown axis %q", ErrInvalidConfig, raw)
		}
	}
	return mask, nil
}
