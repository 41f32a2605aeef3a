package similarity

import "sort"

// block is a run of n equal runes at a[i:i+n] and b[j:j+n].
type block struct {
	i, j, n int
}

// ratio returns 2*M/T, where M is the number of matched runes and T the
// combined length.
func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1.0
	}
	matched := 0
	for _, m := range matchingBlocks(a, b) {
		matched += m.n
	}
	return 2.0 * float64(matched) / float64(total)
}

// matchingBlocks returns the non-overlapping common runs of a and b found by
// repeatedly taking the longest match and recursing on both sides of it.
// Adjacent runs are merged and a zero-length sentinel at (len(a), len(b))
// terminates the list.
func matchingBlocks(a, b []rune) []block {
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	type span struct{ alo, ahi, blo, bhi int }
	queue := []span{{0, len(a), 0, len(b)}}
	var found []block
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		m := longestMatch(a, b2j, s.alo, s.ahi, s.blo, s.bhi)
		if m.n == 0 {
			continue
		}
		found = append(found, m)
		if s.alo < m.i && s.blo < m.j {
			queue = append(queue, span{s.alo, m.i, s.blo, m.j})
		}
		if m.i+m.n < s.ahi && m.j+m.n < s.bhi {
			queue = append(queue, span{m.i + m.n, s.ahi, m.j + m.n, s.bhi})
		}
	}

	sort.Slice(found, func(x, y int) bool {
		if found[x].i != found[y].i {
			return found[x].i < found[y].i
		}
		return found[x].j < found[y].j
	})

	merged := make([]block, 0, len(found)+1)
	for _, m := range found {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.i+last.n == m.i && last.j+last.n == m.j {
				last.n += m.n
				continue
			}
		}
		merged = append(merged, m)
	}
	return append(merged, block{len(a), len(b), 0})
}

// longestMatch finds the longest common run within a[alo:ahi] and
// b[blo:bhi], preferring the earliest start in a, then in b.
func longestMatch(a []rune, b2j map[rune][]int, alo, ahi, blo, bhi int) block {
	best := block{alo, blo, 0}
	j2len := map[int]int{}
	for i := alo; i < ahi; i++ {
		next := map[int]int{}
		for _, j := range b2j[a[i]] {
			if j < blo {
				continue
			}
			if j >= bhi {
				break
			}
			k := j2len[j-1] + 1
			next[j] = k
			if k > best.n {
				best = block{i - k + 1, j - k + 1, k}
			}
		}
		j2len = next
	}
	return best
}
