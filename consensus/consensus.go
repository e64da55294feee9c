// Package consensus implements the MAP base-calling model used to collapse
// a column of aligned, duplicate observations into a single consensus
// base and PHRED-scaled quality.
package consensus

import (
	"fmt"
	"math"

	"github.com/grailbio/bio/errs"
	"github.com/grailbio/bio/seqbases"
)

const (
	// QualMin and QualMax bound every emitted quality except the quality
	// of an all-N column, which is always 0.
	QualMin = 2
	QualMax = 40
)

// Observation is one source base/quality pair contributing to a consensus
// column. Qual is the decoded PHRED quality (not the wire byte).
type Observation struct {
	Base byte
	Qual byte
}

// Call returns the MAP consensus base and quality for one column of
// observations. Ties among alleles with equal posterior break toward the
// fixed order A < C < G < T. An observation whose base is neither A, C, G,
// T, nor N is a ConfigError: it falls outside the alphabet the model
// knows how to score.
func Call(column []Observation) (base byte, qual byte, err error) {
	var logLike [len(seqbases.Bases)]float64
	allN := true

	for _, obs := range column {
		if obs.Base == 'N' {
			// An ambiguous base is informative only through prior
			// disagreement: every allele gets the same flat term.
			flat := math.Log(0.25)
			for a := range logLike {
				logLike[a] += flat
			}
			continue
		}
		allN = false
		allele, ok := seqbases.AlleleOf(obs.Base)
		if !ok {
			return 0, 0, &errs.ConfigError{Reason: fmt.Sprintf("unknown base %q outside the accepted alphabet", obs.Base)}
		}
		e := errorProb(obs.Qual)
		logMatch := math.Log1p(-e)
		logMismatch := math.Log(e / 3)
		for a := range logLike {
			if seqbases.Allele(a) == allele {
				logLike[a] += logMatch
			} else {
				logLike[a] += logMismatch
			}
		}
	}
	if allN {
		return 'N', 0, nil
	}

	best := 0
	for a := 1; a < len(logLike); a++ {
		if logLike[a] > logLike[best] {
			best = a
		}
	}

	// 1 - p(best) = sum of the other posteriors. Compute it relative to
	// the best allele's own likelihood rather than subtracting a
	// near-1 probability from 1, which loses precision fast.
	var relOthers float64
	for a := range logLike {
		if a == best {
			continue
		}
		relOthers += math.Exp(logLike[a] - logLike[best])
	}
	q := QualMax
	if relOthers > 0 {
		logComplement := math.Log(relOthers) - math.Log1p(relOthers)
		q = int(math.Round(-10 * math.Log10E * logComplement))
	}
	if q < QualMin {
		q = QualMin
	}
	if q > QualMax {
		q = QualMax
	}
	return seqbases.Bases[best], byte(q), nil
}

// errorProb converts a PHRED quality into an error probability.
func errorProb(q byte) float64 {
	return math.Exp(float64(q) * (-0.1 * math.Ln10))
}
