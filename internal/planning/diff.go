package planning

import "time"

// Snapshot is the stored schedule state for one target date as of the last
// successful fetch. Exactly one is retained per date.
type Snapshot struct {
	TargetDate time.Time
	CapturedAt time.Time
	Entries    []Entry
}

// Diff is the comparison of a fresh fetch against the prior snapshot.
type Diff struct {
	Appeared    []Entry
	Disappeared []Entry
}

// Empty reports whether nothing changed between the two fetches.
func (d Diff) Empty() bool {
	return len(d.Appeared) == 0 && len(d.Disappeared) == 0
}

// Compare diffs current against previous by signature. previous == nil means
// the first observation for the date: everything is "appeared" and the caller
// records the baseline silently. Pure, no I/O.
func Compare(previous *Snapshot, current []Entry) Diff {
	var d Diff

	if previous == nil {
		d.Appeared = append(d.Appeared, current...)
		return d
	}

	prior := make(map[string]struct{}, len(previous.Entries))
	for _, e := range previous.Entries {
		prior[e.Signature] = struct{}{}
	}
	seen := make(map[string]struct{}, len(current))
	for _, e := range current {
		seen[e.Signature] = struct{}{}
		if _, ok := prior[e.Signature]; !ok {
			d.Appeared = append(d.Appeared, e)
		}
	}
	for _, e := range previous.Entries {
		if _, ok := seen[e.Signature]; !ok {
			d.Disappeared = append(d.Disappeared, e)
		}
	}
	return d
}
