package matching

// strictBonus is added to the overlap threshold when the anchor itself is strict.
const strictBonus = 0.1

// Flexible score penalties for criteria that were widened and actually differ.
const (
	ignoredTopicsScore = 0.5
	difficultyPenalty  = 0.2
	skillLevelPenalty  = 0.2
)

// MinOverlap returns the Jaccard threshold an anchor with n topics demands in
// strict mode. The strict bump never pushes the threshold above 1.
func MinOverlap(n int, strictAnchor bool) float64 {
	var base float64
	switch {
	case n <= 0:
		return 0
	case n == 1:
		base = 1.0
	case n == 2:
		base = 0.7
	case n == 3:
		base = 0.6
	default:
		base = 0.5
	}
	if strictAnchor {
		base += strictBonus
	}
	if base > 1.0 {
		base = 1.0
	}
	return base
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		set[item] = struct{}{}
	}
	return set
}

func intersectionSize(a, b []string) int {
	setB := toSet(b)
	n := 0
	for item := range toSet(a) {
		if _, ok := setB[item]; ok {
			n++
		}
	}
	return n
}

// Jaccard is |A∩B| / |A∪B|. Two empty sets are identical.
func Jaccard(a, b []string) float64 {
	setA, setB := toSet(a), toSet(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}
	inter := intersectionSize(a, b)
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

// Coverage is the share of the anchor's topics found in the candidate's topics.
// An anchor without topics is fully covered.
func Coverage(anchor, candidate []string) float64 {
	setA := toSet(anchor)
	if len(setA) == 0 {
		return 1.0
	}
	return float64(intersectionSize(anchor, candidate)) / float64(len(setA))
}

// IsSubset reports whether every element of a is in b.
func IsSubset(a, b []string) bool {
	setB := toSet(b)
	for _, item := range a {
		if _, ok := setB[item]; !ok {
			return false
		}
	}
	return true
}

// SubsetEitherWay reports whether one topic set contains the other.
func SubsetEitherWay(a, b []string) bool {
	return IsSubset(a, b) || IsSubset(b, a)
}
