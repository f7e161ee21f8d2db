package mergequeue

import (
	"regexp"
	"strconv"

	"github.com/warden-ci/warden/pkg/provider"
)

// conflictBuffer widens each changed range so edits within a few lines of
// each other still count as overlapping.
const conflictBuffer = 3

// lineRange is a closed range of new-side line numbers touched by a hunk.
type lineRange struct {
	start int
	end   int
}

// hunkHeader matches unified-diff hunk headers. Group 1 is the new-side
// start line, group 2 the optional line count.
var hunkHeader = regexp.MustCompile(`(?m)^@@ -\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)

// changedRanges extracts the new-side line ranges a patch touches. A hunk
// with an omitted count covers one line; a zero-count hunk (pure deletion)
// still occupies its anchor line.
func changedRanges(patch string) []lineRange {
	matches := hunkHeader.FindAllStringSubmatch(patch, -1)
	ranges := make([]lineRange, 0, len(matches))
	for _, m := range matches {
		start, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		count := 1
		if m[2] != "" {
			count, err = strconv.Atoi(m[2])
			if err != nil {
				continue
			}
		}
		end := start + count - 1
		if count == 0 {
			end = start
		}
		ranges = append(ranges, lineRange{start: start, end: end})
	}
	return ranges
}

// rangesOverlap reports whether two ranges intersect once each end is
// widened by the conflict buffer.
func rangesOverlap(a, b lineRange) bool {
	return a.end+conflictBuffer >= b.start && b.end+conflictBuffer >= a.start
}

// diffsConflict reports whether two pull request diffs touch overlapping
// line ranges in any shared file. A shared file without patch text (binary
// or oversized) is treated as overlapping.
func diffsConflict(a, b *provider.Diff) bool {
	if a == nil || b == nil {
		return false
	}
	byName := make(map[string]provider.DiffFile, len(a.Files))
	for _, f := range a.Files {
		byName[f.Filename] = f
	}
	for _, bf := range b.Files {
		af, ok := byName[bf.Filename]
		if !ok {
			continue
		}
		if af.Patch == "" || bf.Patch == "" {
			return true
		}
		for _, ar := range changedRanges(af.Patch) {
			for _, br := range changedRanges(bf.Patch) {
				if rangesOverlap(ar, br) {
					return true
				}
			}
		}
	}
	return false
}
