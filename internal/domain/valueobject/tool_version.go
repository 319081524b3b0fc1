package valueobject

import (
	"fmt"
	"strconv"
	"strings"
)

// ToolVersion - разобранная версия инструмента аудита (major.minor.patch)
type ToolVersion struct {
	Major int
	Minor int
	Patch int
}

// ParseToolVersion разбирает "6", "6.1" и "6.1.0"; суффиксы "-beta.1" и "+build" отбрасываются
func ParseToolVersion(raw string) (ToolVersion, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "v")
	if idx := strings.IndexAny(trimmed, "-+"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	if trimmed == "" {
		return ToolVersion{}, fmt.Errorf("empty tool version")
	}

	parts := strings.Split(trimmed, ".")
	if len(parts) > 3 {
		return ToolVersion{}, fmt.Errorf("invalid tool version %q", raw)
	}

	numbers := [3]int{}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return ToolVersion{}, fmt.Errorf("invalid tool version %q", raw)
		}
		numbers[i] = n
	}

	return ToolVersion{Major: numbers[0], Minor: numbers[1], Patch: numbers[2]}, nil
}

// Compare возвращает -1, 0 или 1
func (v ToolVersion) Compare(other ToolVersion) int {
	switch {
	case v.Major != other.Major:
		return compareInt(v.Major, other.Major)
	case v.Minor != other.Minor:
		return compareInt(v.Minor, other.Minor)
	default:
		return compareInt(v.Patch, other.Patch)
	}
}

func (v ToolVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// VersionRange - полуинтервал [Min, Max)
type VersionRange struct {
	Min ToolVersion
	Max ToolVersion
}

// Contains проверяет вхождение версии в диапазон
func (r VersionRange) Contains(v ToolVersion) bool {
	return v.Compare(r.Min) >= 0 && v.Compare(r.Max) < 0
}

func (r VersionRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Min, r.Max)
}

func compareInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
