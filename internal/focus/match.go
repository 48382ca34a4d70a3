package focus

// DefaultFuzzyThreshold is the minimum Jaccard similarity for a fuzzy merge.
const DefaultFuzzyThreshold = 0.70

// MatchKind tags how a candidate resolved against existing foci.
type MatchKind int

const (
	NoMatch MatchKind = iota
	ExactMatch
	AliasMatch
	FuzzyMatch
)

func (k MatchKind) String() string {
	switch k {
	case ExactMatch:
		return "exact"
	case AliasMatch:
		return "alias"
	case FuzzyMatch:
		return "fuzzy"
	default:
		return "none"
	}
}

// Match is the outcome of resolving a candidate label. Score is 1 for exact
// and alias matches and the Jaccard similarity for fuzzy ones.
type Match struct {
	Kind  MatchKind
	ID    string
	Score float64
}

// Resolve finds the merge target for a candidate among foci. Exact canonical
// label matches win over alias matches, which win over the best fuzzy match at
// or above threshold. Ties on fuzzy score keep the first focus in slice order.
func Resolve(label string, aliases []string, foci []*FocusPoint, tok Tokenizer, threshold float64) Match {
	norm := normalize(label)
	if norm == "" {
		return Match{Kind: NoMatch}
	}

	for _, f := range foci {
		if normalize(f.Label) == norm {
			return Match{Kind: ExactMatch, ID: f.ID, Score: 1}
		}
	}

	probes := make(map[string]struct{}, len(aliases)+1)
	probes[norm] = struct{}{}
	for _, a := range aliases {
		if n := normalize(a); n != "" {
			probes[n] = struct{}{}
		}
	}
	for _, f := range foci {
		for _, a := range f.Aliases {
			if _, ok := probes[normalize(a)]; ok {
				return Match{Kind: AliasMatch, ID: f.ID, Score: 1}
			}
		}
		// A candidate alias naming an existing canonical label.
		if _, ok := probes[normalize(f.Label)]; ok {
			return Match{Kind: AliasMatch, ID: f.ID, Score: 1}
		}
	}

	best := Match{Kind: NoMatch}
	for _, f := range foci {
		sim := Jaccard(tok, norm, normalize(f.Label))
		if sim >= threshold && sim > best.Score {
			best = Match{Kind: FuzzyMatch, ID: f.ID, Score: sim}
		}
	}
	return best
}
