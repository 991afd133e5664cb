package codec

import "fmt"

type groupingMode uint8

const (
	groupPerTensor groupingMode = iota
	groupPerChannel
	groupPerGroup
)

// Grouping selects how quantization parameters are shared across a weight
// matrix: one set for the whole tensor, one per output channel (row), or one
// per fixed-size run of columns within a row.
type Grouping struct {
	mode groupingMode
	size int
}

// PerTensor derives a single scale/zero-point for the whole matrix.
func PerTensor() Grouping {
	return Grouping{mode: groupPerTensor}
}

// PerChannel derives one scale/zero-point per output channel (matrix row).
func PerChannel() Grouping {
	return Grouping{mode: groupPerChannel}
}

// PerGroup derives one scale/zero-point per run of size columns within a row.
// Smaller groups track local weight statistics more closely at the cost of
// more stored parameters.
func PerGroup(size int) Grouping {
	return Grouping{mode: groupPerGroup, size: size}
}

// IsPerGroup reports whether parameters are derived per column group.
func (g Grouping) IsPerGroup() bool {
	return g.mode == groupPerGroup
}

// Size returns the configured group size (0 unless per-group).
func (g Grouping) Size() int {
	return g.size
}

// Validate checks the grouping configuration.
func (g Grouping) Validate() error {
	if g.mode == groupPerGroup && g.size < 1 {
		return fmt.Errorf("codec: group size must be >= 1, got %d", g.size)
	}
	return nil
}

// groupWidth returns the number of columns sharing one parameter set.
func (g Grouping) groupWidth(cols int) int {
	if g.mode == groupPerGroup && g.size < cols {
		return g.size
	}
	return cols
}

func (g Grouping) String() string {
	switch g.mode {
	case groupPerTensor:
		return "per-tensor"
	case groupPerChannel:
		return "per-channel"
	case groupPerGroup:
		return fmt.Sprintf("group(%d)", g.size)
	default:
		return "unknown"
	}
}
