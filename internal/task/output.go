package task

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	outputPrefix = "output_"
	outputSuffix = ".json"
)

// OutputName returns the artifact file name for the record at index i.
// It depends on nothing but the index.
func OutputName(i int) string {
	return fmt.Sprintf("%s%d%s", outputPrefix, i, outputSuffix)
}

// OutputPath joins dir and OutputName(i). A "./" prefix on dir is kept so
// the agent sees the same relative path the operator configured.
func OutputPath(dir string, i int) string {
	p := filepath.Join(dir, OutputName(i))
	if strings.HasPrefix(dir, "./") && !strings.HasPrefix(p, "./") {
		p = "./" + p
	}
	return p
}

// ParseOutputName extracts the index from an artifact file name.
// "output_12.json" → 12, true.
func ParseOutputName(name string) (int, bool) {
	if !strings.HasPrefix(name, outputPrefix) || !strings.HasSuffix(name, outputSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, outputPrefix), outputSuffix)
	if digits == "" {
		return 0, false
	}
	i, err := strconv.Atoi(digits)
	if err != nil || i < 0 || strconv.Itoa(i) != digits {
		return 0, false
	}
	return i, true
}
