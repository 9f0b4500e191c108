package market

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
)

// LoadTargets reads one item base name per line, skipping blank lines and '#' comments.
func LoadTargets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open items file: %w", err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		names = append(names, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read items file: %w", err)
	}

	return names, nil
}

// ExpandTargets crosses every base name with the plain and StatTrak variants and
// every quality suffix.
func ExpandTargets(bases, qualities []string, statTrakPrefix string) []string {
	variants := []string{""}
	if statTrakPrefix != "" {
		variants = append(variants, statTrakPrefix)
	}

	targets := make([]string, 0, len(bases)*len(variants)*len(qualities))
	for _, base := range bases {
		base = strings.TrimSpace(base)
		if base == "" {
			continue
		}
		for _, variant := range variants {
			for _, quality := range qualities {
				targets = append(targets, strings.TrimSpace(variant+base+" "+quality))
			}
		}
	}
	return targets
}

// Shuffle randomizes target order in place. A nil r uses the global source.
func Shuffle(targets []string, r *rand.Rand) {
	swap := func(i, j int) { targets[i], targets[j] = targets[j], targets[i] }
	if r == nil {
		rand.Shuffle(len(targets), swap)
		return
	}
	r.Shuffle(len(targets), swap)
}
