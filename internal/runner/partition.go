// Package runner splits a question set among cooperating runners and runs
// them side by side in one process.
package runner

import "fmt"

// Range is an inclusive span of question ordinals. A range with End < Start
// is empty.
type Range struct {
	Start int
	End   int
}

// Empty reports whether the range holds no ordinals.
func (r Range) Empty() bool {
	return r.End < r.Start
}

// Len returns the number of ordinals in the range.
func (r Range) Len() int {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start + 1
}

// String returns the string representation of Range.
func (r Range) String() string {
	if r.Empty() {
		return "empty"
	}
	return fmt.Sprintf("%d..%d", r.Start, r.End)
}

// Partition splits 1..total into runners contiguous, disjoint ranges of
// total/runners ordinals each; the last runner also takes the remainder.
// When there are fewer questions than runners, each question gets its own
// runner and the remaining runners get empty ranges.
func Partition(total, runners int) []Range {
	if runners < 1 {
		runners = 1
	}
	out := make([]Range, runners)
	if total < 1 {
		for i := range out {
			out[i] = Range{Start: 1, End: 0}
		}
		return out
	}

	size := total / runners
	if size == 0 {
		for i := range out {
			k := i + 1
			if k <= total {
				out[i] = Range{Start: k, End: k}
			} else {
				out[i] = Range{Start: k, End: k - 1}
			}
		}
		return out
	}

	for i := range out {
		out[i] = Range{Start: i*size + 1, End: (i + 1) * size}
	}
	out[runners-1].End = total
	return out
}

// RangeFor returns the range of runner id (1-based).
func RangeFor(total, runners, id int) (Range, error) {
	if runners < 1 {
		return Range{}, fmt.Errorf("runners must be >= 1, got %d", runners)
	}
	if id < 1 || id > runners {
		return Range{}, fmt.Errorf("runner id must be between 1 and %d, got %d", runners, id)
	}
	return Partition(total, runners)[id-1], nil
}

// Window partitions first..last instead of 1..total. Runners resolve their
// range with it once discovery has fixed last.
func Window(first, last, runners, id int) (Range, error) {
	if first < 1 {
		first = 1
	}
	r, err := RangeFor(last-first+1, runners, id)
	if err != nil {
		return Range{}, err
	}
	offset := first - 1
	return Range{Start: r.Start + offset, End: r.End + offset}, nil
}
