package intake

import "regexp"

var missingIntentPattern = regexp.MustCompile(`(?i)\b(?:what(?:'s|’s|\s+is)?\s+(?:else\s+)?(?:is\s+)?(?:still\s+)?(?:missing|left|needed|remaining)|what\s+(?:else\s+)?do\s+you\s+(?:still\s+)?need|what\s+(?:else\s+)?(?:do|should)\s+i\s+(?:still\s+)?(?:need\s+to\s+)?(?:provide|give|answer))\b`)

// IsMissingIntent reports whether the user is asking what is still needed.
func IsMissingIntent(input string) bool {
	return missingIntentPattern.MatchString(input)
}
