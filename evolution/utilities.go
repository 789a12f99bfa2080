package evolution

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash generates a stable, deterministic identifier from content
// fields only. Wall-clock time never participates, so the same inputs hash
// identically across runs.
func ContentHash(kind string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(kind))
	h.Write([]byte("|"))
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte(";"))
	}
	sum := h.Sum(nil)
	return kind + "-" + hex.EncodeToString(sum[:8])
}

// signatureTokens splits a structural signature into its token set.
// Signatures use ':' and '-' as separators; tokens are lowercased.
func signatureTokens(sig string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(sig, func(r rune) bool {
		return r == ':' || r == '-' || r == '.' || r == '/' || r == ' '
	}) {
		if tok = strings.ToLower(tok); tok != "" {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// SignatureSimilarity computes Jaccard similarity between the token sets of
// two structural signatures. Two empty signatures count as identical.
func SignatureSimilarity(a, b string) float64 {
	ta, tb := signatureTokens(a), signatureTokens(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

// NoveltyIndex is 1 minus the average structural similarity of sig to the
// given recent signatures. No history means maximum novelty.
func NoveltyIndex(sig string, recent []string) float64 {
	if len(recent) == 0 {
		return 1.0
	}
	var total float64
	for _, r := range recent {
		total += SignatureSimilarity(sig, r)
	}
	return Clamp01(1.0 - total/float64(len(recent)))
}

// Clamp01 ensures value is in [0,1] range.
func Clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

func clampFloat64(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
