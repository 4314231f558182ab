package project

import (
	"strings"
)

const otherReference = "other (-, -)"

// DetermineOrganism resolves the project organism from the reference genome
// ("Human (GRCh38)" -> "human"), falling back to the organism field. When
// supported is non-empty the organism must be one of its keys.
func DetermineOrganism(info Info, supported map[string]string) (string, bool) {
	ref := strings.TrimSpace(info.ReferenceGenome)
	if ref != "" && strings.ToLower(ref) != otherReference {
		organism := strings.ToLower(strings.TrimSpace(strings.SplitN(ref, "(", 2)[0]))
		if isSupported(organism, supported) {
			return organism, true
		}
	}

	organism := strings.ToLower(strings.TrimSpace(info.Organism))
	if isSupported(organism, supported) {
		return organism, true
	}
	return "", false
}

func isSupported(organism string, supported map[string]string) bool {
	if organism == "" {
		return false
	}
	if len(supported) == 0 {
		return true
	}
	_, ok := supported[organism]
	return ok
}
