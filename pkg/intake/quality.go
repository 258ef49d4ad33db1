package intake

import (
	"math"
	"strings"
	"unicode"
)

// CompletenessScorer rates an intake by how much usable detail it holds:
// filled slots, a reachable phone number and a description long enough
// for a first review.
type CompletenessScorer struct {
	// DescriptionWords is the description length that earns full marks.
	DescriptionWords int
}

var _ QualityScorer = CompletenessScorer{}

// Score returns a value in [0, 1] rounded to two decimals.
func (c CompletenessScorer) Score(_ string, answers map[SlotID]string) float64 {
	target := c.DescriptionWords
	if target <= 0 {
		target = 25
	}

	filled := 0
	for _, id := range []SlotID{SlotName, SlotEmail, SlotPhone, SlotOpposingParty, SlotDescription} {
		if strings.TrimSpace(answers[id]) != "" {
			filled++
		}
	}
	score := 0.6 * float64(filled) / 5

	words := len(strings.Fields(answers[SlotDescription]))
	score += 0.3 * math.Min(float64(words)/float64(target), 1)

	digits := 0
	for _, r := range answers[SlotPhone] {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if digits >= 10 {
		score += 0.1
	}
	return math.Round(score*100) / 100
}
