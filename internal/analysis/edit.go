package analysis

import "sort"

// edit replaces src[start:end] with text. An insertion has start == end.
type edit struct {
	start int
	end   int
	text  string
}

// applyEdits applies non-overlapping edits to a copy of src. Edits that
// overlap an earlier one are dropped; insertions at the same offset keep
// their relative order.
func applyEdits(src []byte, edits []edit) []byte {
	if len(edits) == 0 {
		return append([]byte(nil), src...)
	}

	sorted := append([]edit(nil), edits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].start != sorted[j].start {
			return sorted[i].start < sorted[j].start
		}
		return sorted[i].end < sorted[j].end
	})

	out := make([]byte, 0, len(src))
	pos := 0
	for _, e := range sorted {
		if e.start < pos || e.end < e.start || e.end > len(src) {
			continue
		}
		out = append(out, src[pos:e.start]...)
		out = append(out, e.text...)
		pos = e.end
	}
	return append(out, src[pos:]...)
}
