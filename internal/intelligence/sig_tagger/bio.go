package sig_tagger

import (
	"math"
	"strings"

	"github.com/turtacn/sigparse/internal/domain/instruction"
)

// LabelO tags a token outside every entity.
const LabelO = "O"

// normalizeTag upper-cases a raw tag and reads a bare label such as
// "DOSAGE" as a continuation, which fixBIOLegality then turns into a
// beginning where needed.
func normalizeTag(tag string) string {
	tag = strings.ToUpper(strings.TrimSpace(tag))
	switch {
	case tag == "" || tag == LabelO:
		return LabelO
	case strings.HasPrefix(tag, "B-"), strings.HasPrefix(tag, "I-"):
		return tag
	}
	return "I-" + tag
}

// ---------------------------------------------------------------------------
// BIO legality fix
// ---------------------------------------------------------------------------

// fixBIOLegality ensures no I-X tag appears without a preceding B-X or I-X.
func fixBIOLegality(labels []string) []string {
	fixed := make([]string, len(labels))
	copy(fixed, labels)

	for i, l := range fixed {
		if !strings.HasPrefix(l, "I-") {
			continue
		}
		entityType := l[2:]
		if i == 0 {
			fixed[i] = "B-" + entityType
			continue
		}
		prev := fixed[i-1]
		prevType := ""
		if strings.HasPrefix(prev, "B-") || strings.HasPrefix(prev, "I-") {
			prevType = prev[2:]
		}
		if prevType != entityType {
			fixed[i] = "B-" + entityType
		}
	}
	return fixed
}

// ---------------------------------------------------------------------------
// BIO -> Entity extraction
// ---------------------------------------------------------------------------

// bioToEntities converts a legal BIO sequence into entities. Entity text is
// the slice of text covered by the tokens, so spacing and punctuation are
// kept as they appear in the normalized input. probs may be nil.
func bioToEntities(text string, spans []tokenSpan, labels []string, probs [][]float64) []instruction.Entity {
	var entities []instruction.Entity
	n := len(spans)
	if len(labels) < n {
		n = len(labels)
	}

	i := 0
	for i < n {
		label := labels[i]
		if !strings.HasPrefix(label, "B-") {
			i++
			continue
		}

		entityType := label[2:]
		startToken := i
		i++
		for i < n && labels[i] == "I-"+entityType {
			i++
		}
		endToken := i

		startChar := spans[startToken].StartChar
		endChar := spans[endToken-1].EndChar

		entities = append(entities, instruction.Entity{
			Label: instruction.ParseLabel(entityType),
			Text:  text[startChar:endChar],
			Start: startChar,
			End:   endChar,
			Score: computeEntityConfidence(probs, startToken, endToken),
		})
	}
	return entities
}

// computeEntityConfidence is the geometric mean of the per-token maximum
// probabilities. Tokens without a probability row count as certain.
func computeEntityConfidence(probs [][]float64, startToken, endToken int) float64 {
	n := endToken - startToken
	if n <= 0 {
		return 0
	}

	logSum := 0.0
	for i := startToken; i < endToken; i++ {
		if i >= len(probs) {
			break
		}
		p := maxFloat64Slice(probs[i])
		if p <= 0 {
			return 0
		}
		logSum += math.Log(p)
	}
	return math.Exp(logSum / float64(n))
}

func maxFloat64Slice(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	m := s[0]
	for _, v := range s[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// viterbiDecode finds the best BIO-legal label sequence for a per-token
// probability matrix whose columns are named by labelSet.
func viterbiDecode(emission [][]float64, transition [][]float64, labelSet []string) []string {
	seqLen := len(emission)
	numLabels := len(labelSet)
	if seqLen == 0 || numLabels == 0 {
		return []string{}
	}

	// dp[t][j] = best log-score ending at time t with label j
	dp := make([][]float64, seqLen)
	backptr := make([][]int, seqLen)
	for t := 0; t < seqLen; t++ {
		dp[t] = make([]float64, numLabels)
		backptr[t] = make([]int, numLabels)
	}

	for j := 0; j < numLabels; j++ {
		score := safeLog(emission[0][j])
		if strings.HasPrefix(labelSet[j], "I-") {
			score = math.Inf(-1)
		}
		dp[0][j] = score
		backptr[0][j] = -1
	}

	for t := 1; t < seqLen; t++ {
		for j := 0; j < numLabels; j++ {
			bestScore := math.Inf(-1)
			bestPrev := 0
			for k := 0; k < numLabels; k++ {
				s := dp[t-1][k] + safeLog(transition[k][j]) + safeLog(emission[t][j])
				if s > bestScore {
					bestScore = s
					bestPrev = k
				}
			}
			dp[t][j] = bestScore
			backptr[t][j] = bestPrev
		}
	}

	bestFinal := 0
	bestScore := dp[seqLen-1][0]
	for j := 1; j < numLabels; j++ {
		if dp[seqLen-1][j] > bestScore {
			bestScore = dp[seqLen-1][j]
			bestFinal = j
		}
	}

	path := make([]int, seqLen)
	path[seqLen-1] = bestFinal
	for t := seqLen - 2; t >= 0; t-- {
		path[t] = backptr[t+1][path[t+1]]
	}

	labels := make([]string, seqLen)
	for t, idx := range path {
		if idx >= 0 && idx < numLabels {
			labels[t] = labelSet[idx]
		} else {
			labels[t] = LabelO
		}
	}
	return labels
}

func safeLog(x float64) float64 {
	if x <= 0 {
		return -1e10
	}
	return math.Log(x)
}

// argmaxDecode picks the most probable label per token independently.
func argmaxDecode(emission [][]float64, labelSet []string) []string {
	labels := make([]string, len(emission))
	for i, row := range emission {
		if len(row) == 0 {
			labels[i] = LabelO
			continue
		}
		bestIdx := 0
		for j := 1; j < len(row); j++ {
			if row[j] > row[bestIdx] {
				bestIdx = j
			}
		}
		if bestIdx < len(labelSet) {
			labels[i] = labelSet[bestIdx]
		} else {
			labels[i] = LabelO
		}
	}
	return labels
}

// ---------------------------------------------------------------------------
// BIO transition matrix
// ---------------------------------------------------------------------------

// buildBIOTransitionMatrix gives legal transitions probability 1 and
// illegal ones 0.
//
// Legal transitions:
//
//	O   -> O, B-*
//	B-X -> I-X, O, B-*
//	I-X -> I-X, O, B-*
func buildBIOTransitionMatrix(labelSet []string) [][]float64 {
	n := len(labelSet)
	trans := make([][]float64, n)
	for i := range trans {
		trans[i] = make([]float64, n)
	}
	for i, from := range labelSet {
		for j, to := range labelSet {
			if isLegalBIOTransition(from, to) {
				trans[i][j] = 1.0
			}
		}
	}
	return trans
}

func isLegalBIOTransition(from, to string) bool {
	if to == LabelO || strings.HasPrefix(to, "B-") {
		return true
	}
	if !strings.HasPrefix(to, "I-") {
		return false
	}
	if from == LabelO {
		return false
	}
	if strings.HasPrefix(from, "B-") || strings.HasPrefix(from, "I-") {
		return from[2:] == to[2:]
	}
	return false
}
