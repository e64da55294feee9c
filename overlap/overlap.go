// Package overlap implements the overlap-merge consensus path: for a
// duplicate group whose insert is shorter than twice the read length, it
// estimates how much of the forward and reverse mates overlap, verifies
// the estimate by local alignment, and splices both mates into a single
// aligned pileup for the consensus caller.
package overlap

import (
	"github.com/grailbio/bio/consensus"
	"github.com/grailbio/bio/seqbases"
)

// Config carries the priors and acceptance threshold for overlap
// detection.
type Config struct {
	// InsertSize and StdDev are the expected insert size and its standard
	// deviation, used to center the search window for the overlap length.
	InsertSize int
	StdDev     int
	// MinMatchFraction is the minimum fraction of matching bases, at the
	// chosen overlap length, required to accept a merge. Below it, the
	// group is left unmerged.
	MinMatchFraction float64
}

// DefaultMinMatchFraction is used when a Config leaves MinMatchFraction
// unset (zero).
const DefaultMinMatchFraction = 0.8

// Read is one mate's sequence and decoded per-base qualities.
type Read struct {
	Seq  string
	Qual []byte
}

// Member is one duplicate group member's forward and reverse mates. Every
// member of a group shares the same forward length and the same reverse
// length (the pipeline only ever merges fixed-length reads).
type Member struct {
	Fwd Read
	Rev Read
}

// Result is a verified merge: the consensus sequence and quality of the
// spliced pileup, and the overlap length used to build it.
type Result struct {
	Seq     string
	Qual    []byte
	Overlap int
}

func minMatchFraction(cfg Config) float64 {
	if cfg.MinMatchFraction <= 0 {
		return DefaultMinMatchFraction
	}
	return cfg.MinMatchFraction
}

// searchWindow returns the candidate overlap lengths to try, in ascending
// order, for mates of length readLen.
func searchWindow(cfg Config, readLen int) []int {
	star := 2*readLen - cfg.InsertSize
	lo := star - 3*cfg.StdDev
	hi := star + 3*cfg.StdDev
	if lo < 1 {
		lo = 1
	}
	if hi > readLen {
		hi = readLen
	}
	if lo > hi {
		return nil
	}
	window := make([]int, 0, hi-lo+1)
	for o := lo; o <= hi; o++ {
		window = append(window, o)
	}
	return window
}

// matchCount returns the number of matching bases between the last o
// bases of fwd and the first o bases of revComp (the reverse complement
// of the reverse mate).
func matchCount(fwd, revComp string, o int) int {
	n := 0
	fwdTail := fwd[len(fwd)-o:]
	for i := 0; i < o; i++ {
		if fwdTail[i] == revComp[i] {
			n++
		}
	}
	return n
}

// FindOverlap picks the best overlap length for a representative pair,
// scoring each candidate in the search window by the number of matching
// bases between the forward read's tail and the reverse-complemented
// reverse read's head. Ties break toward the candidate closest to the
// insert-size prior's center, then toward the smaller overlap length.
//
// ok is false when the window is empty or the best match fraction falls
// below the configured threshold; callers must not merge in that case.
func FindOverlap(cfg Config, fwdSeq, revSeq string) (o int, matchFraction float64, ok bool) {
	readLen := len(fwdSeq)
	window := searchWindow(cfg, readLen)
	if len(window) == 0 {
		return 0, 0, false
	}
	star := 2*readLen - cfg.InsertSize
	revComp := seqbases.ReverseComplement(revSeq)

	bestO, bestScore, bestDist := 0, -1, 0
	for _, cand := range window {
		score := matchCount(fwdSeq, revComp, cand)
		dist := abs(cand - star)
		if score > bestScore || (score == bestScore && dist < bestDist) {
			bestO, bestScore, bestDist = cand, score, dist
		}
	}
	fraction := float64(bestScore) / float64(bestO)
	if fraction < minMatchFraction(cfg) {
		return bestO, fraction, false
	}
	return bestO, fraction, true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Merge splices members into a single pileup of length
// len(Fwd.Seq)+len(Rev.Seq)-o and calls the consensus caller column by
// column. Every member must share the same forward length and the same
// reverse length; Merge does not itself verify that invariant.
func Merge(members []Member, o int) (seq string, qual []byte, err error) {
	lf := len(members[0].Fwd.Seq)
	lr := len(members[0].Rev.Seq)
	total := lf + lr - o
	revStart := lf - o

	revComps := make([]Read, len(members))
	for i, m := range members {
		comp := seqbases.ReverseComplement(m.Rev.Seq)
		q := make([]byte, len(m.Rev.Qual))
		for j, v := range m.Rev.Qual {
			q[len(q)-1-j] = v
		}
		revComps[i] = Read{Seq: comp, Qual: q}
	}

	outSeq := make([]byte, total)
	outQual := make([]byte, total)
	for c := 0; c < total; c++ {
		var obs []consensus.Observation
		if c < lf {
			for _, m := range members {
				obs = append(obs, consensus.Observation{Base: m.Fwd.Seq[c], Qual: m.Fwd.Qual[c]})
			}
		}
		if ri := c - revStart; ri >= 0 && ri < lr {
			for _, rc := range revComps {
				obs = append(obs, consensus.Observation{Base: rc.Seq[ri], Qual: rc.Qual[ri]})
			}
		}
		base, q, callErr := consensus.Call(obs)
		if callErr != nil {
			return "", nil, callErr
		}
		outSeq[c] = base
		outQual[c] = q
	}
	return string(outSeq), outQual, nil
}

// Try attempts an overlap merge for a duplicate group, using members[0] as
// the representative pair for overlap estimation. ok is false when the
// group's mates do not overlap convincingly enough to merge; the caller
// should fall back to the non-overlap consensus path in that case.
func Try(cfg Config, members []Member) (result *Result, ok bool, err error) {
	rep := members[0]
	o, _, overlapOK := FindOverlap(cfg, rep.Fwd.Seq, rep.Rev.Seq)
	if !overlapOK {
		return nil, false, nil
	}
	seq, qual, err := Merge(members, o)
	if err != nil {
		return nil, false, err
	}
	return &Result{Seq: seq, Qual: qual, Overlap: o}, true, nil
}
