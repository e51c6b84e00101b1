package graph

// Jaccard computes the Jaccard similarity of two string sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	set1 := make(map[string]bool, len(a))
	for _, s := range a {
		set1[s] = true
	}
	set2 := make(map[string]bool, len(b))
	for _, s := range b {
		set2[s] = true
	}

	intersection := 0
	for s := range set1 {
		if set2[s] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
