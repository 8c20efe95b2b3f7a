package nip19

import "regexp"

var refPattern = regexp.MustCompile(`(?i)(?:nostr:)?(?:note1|nevent1)[02-9ac-hj-np-z]{6,}`)

// Match is a reference found in free text.
type Match struct {
	// Ref is the matched text, including any nostr: prefix.
	Ref string
	// Start and End are byte offsets into the scanned text.
	Start, End int
}

// FindAll returns every note1/nevent1 reference in text, in order. Matches are
// syntactic only; Decode decides whether a match is valid.
func FindAll(text string) []Match {
	locs := refPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	out := make([]Match, 0, len(locs))
	for _, l := range locs {
		out = append(out, Match{Ref: text[l[0]:l[1]], Start: l[0], End: l[1]})
	}
	return out
}
