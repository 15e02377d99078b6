package energy

import (
	"math"

	"github.com/pulse-control/ptc/internal/generation"
)

// ComputeDiversity scores disagreement across an aligned set of events:
// one event per model stream, all at the same nominal token position. The
// result is bounded [0, 1]; 0 means the streams agree.
//
// When every event carries a confidence vector of the same length, the
// score is the mean pairwise total-variation distance between the softmax
// distributions. Otherwise it falls back to lexical disagreement: the
// number of streams whose token differs from the modal token, divided by
// the ensemble size. Ensembles of size 0 or 1 have zero diversity by
// definition.
func ComputeDiversity(aligned []generation.Event) float64 {
	if len(aligned) <= 1 {
		return 0
	}

	if dists, ok := distributions(aligned); ok {
		return meanPairwiseTV(dists)
	}

	return lexicalDisagreement(aligned)
}

// distributions converts confidence vectors to probability distributions.
// Returns false when any vector is missing or the lengths differ, which
// routes the caller to the lexical fallback.
func distributions(aligned []generation.Event) ([][]float64, bool) {
	width := len(aligned[0].Confidence)
	if width == 0 {
		return nil, false
	}

	dists := make([][]float64, 0, len(aligned))
	for _, ev := range aligned {
		if len(ev.Confidence) != width {
			return nil, false
		}
		dists = append(dists, softmax(ev.Confidence))
	}
	return dists, true
}

// meanPairwiseTV averages the total-variation distance over all stream
// pairs. TV distance is already in [0, 1].
func meanPairwiseTV(dists [][]float64) float64 {
	var total float64
	var pairs int
	for i := 0; i < len(dists); i++ {
		for j := i + 1; j < len(dists); j++ {
			total += totalVariation(dists[i], dists[j])
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return clamp01(total / float64(pairs))
}

// totalVariation is half the L1 distance between two distributions.
func totalVariation(p, q []float64) float64 {
	var sum float64
	for i := range p {
		sum += math.Abs(p[i] - q[i])
	}
	return 0.5 * sum
}

// lexicalDisagreement counts streams whose token differs from the modal
// token, normalized by ensemble size.
func lexicalDisagreement(aligned []generation.Event) float64 {
	counts := make(map[string]int, len(aligned))
	for _, ev := range aligned {
		counts[ev.Token]++
	}

	modal := 0
	for _, c := range counts {
		if c > modal {
			modal = c
		}
	}

	return clamp01(float64(len(aligned)-modal) / float64(len(aligned)))
}

// softmax converts log-probabilities to a normalized distribution.
func softmax(logProbs []float64) []float64 {
	maxLP := logProbs[0]
	for _, lp := range logProbs[1:] {
		if lp > maxLP {
			maxLP = lp
		}
	}

	out := make([]float64, len(logProbs))
	var sum float64
	for i, lp := range logProbs {
		out[i] = math.Exp(lp - maxLP)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
