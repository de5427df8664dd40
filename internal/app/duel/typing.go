package duel

import "time"

// typingMetrics recomputes words-per-minute and accuracy for typed text
// against the canonical text. WPM counts correct characters in units of five
// per minute; accuracy is correct over total typed.
func typingMetrics(canonical, typed string, elapsed time.Duration) (wpm, accuracy float64) {
	canonicalRunes := []rune(canonical)
	typedRunes := []rune(typed)

	correct := 0
	for i, r := range typedRunes {
		if i < len(canonicalRunes) && canonicalRunes[i] == r {
			correct++
		}
	}

	if len(typedRunes) > 0 {
		accuracy = float64(correct) / float64(len(typedRunes))
	}

	minutes := elapsed.Minutes()
	if minutes > 0 {
		wpm = (float64(correct) / 5.0) / minutes
	}
	return wpm, accuracy
}
