package intake

import (
	"regexp"
	"strings"
	"unicode"
)

// Reason explains why an answer was rejected.
type Reason string

const (
	ReasonEmpty                Reason = "empty"
	ReasonPlaceholder          Reason = "placeholder"
	ReasonDuplicate            Reason = "duplicate"
	ReasonContainsService      Reason = "contains_service"
	ReasonRepeatsOpposingParty Reason = "repeats_opposing_party"
	ReasonInvalidName          Reason = "invalid_name"
	ReasonInvalidEmail         Reason = "invalid_email"
	ReasonInvalidPhone         Reason = "invalid_phone"
	ReasonLooksLikeContact     Reason = "looks_like_contact"
	ReasonNoOpposingParty      Reason = "no_opposing_party"
)

// Verdict is the outcome of validating one answer for one slot.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	Reason   Reason `json:"reason,omitempty"`
}

// Accept returns an accepting verdict.
func Accept() Verdict { return Verdict{Accepted: true} }

// Reject returns a rejecting verdict with reason.
func Reject(r Reason) Verdict { return Verdict{Reason: r} }

var hints = map[Reason]string{
	ReasonPlaceholder:          "Please answer with your own details rather than the question.",
	ReasonDuplicate:            "That looks like an answer you already gave for a different question.",
	ReasonContainsService:      "Could you describe what happened in your own words?",
	ReasonRepeatsOpposingParty: "Could you describe what happened in your own words?",
	ReasonInvalidName:          "That doesn't look like a name.",
	ReasonInvalidEmail:         "That doesn't look like a valid email address.",
	ReasonInvalidPhone:         "That doesn't look like a valid phone number.",
	ReasonLooksLikeContact:     "Please give the name of the person or organization, not their contact details.",
	ReasonNoOpposingParty:      `If there is no other party, reply "no opposing party".`,
}

// Hint is a short user-facing explanation to put in front of the re-asked
// prompt. Empty answers get no hint.
func (v Verdict) Hint() string {
	if v.Accepted {
		return ""
	}
	return hints[v.Reason]
}

// maxEchoWords bounds the inputs checked for leading question phrases;
// longer texts that happen to start with "what's" are real answers.
const maxEchoWords = 12

var (
	// questionPatterns match inputs that open like one of our prompts.
	questionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^what(?:'|’)?s\b`),
		regexp.MustCompile(`(?i)^what\s+is\s+(?:your|the)\b`),
		regexp.MustCompile(`(?i)^please\s+(?:provide|enter|describe|share|type|tell)\b`),
	}

	placeholderPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^(?:your|enter\s+(?:your|a)|my)\s+(?:full\s+)?(?:name|email(?:\s+address)?|phone(?:\s+number)?|description)$`),
		regexp.MustCompile(`(?i)[\[{<]\s*[a-z][a-z _-]*\s*[\]}>]`),
		regexp.MustCompile(`(?i)^(?:n/?a|none|null|nil|undefined|test|asdf+|x{2,}|\.{2,}|-+|\?+)$`),
	}

	noPartyPattern = regexp.MustCompile(`(?i)^(?:n/?a|none|nobody|no\s*one|nil|null|no)\.?$`)

	emailPattern       = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]{2,}$`)
	emailInTextPattern = regexp.MustCompile(`[^\s@]+@[^\s@]+\.[^\s@]{2,}`)
	phonePattern       = regexp.MustCompile(`^\+?[0-9\s().\-]{7,20}$`)
	nonWord            = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	spaces             = regexp.MustCompile(`\s+`)
)

// Normalize trims and collapses internal whitespace.
func Normalize(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func foldText(s string) string {
	return strings.TrimSpace(nonWord.ReplaceAllString(strings.ToLower(s), " "))
}

// IsPlaceholder reports whether value is a template or echo rather than real
// data. echoes are texts the user may have copied back: prompts already
// shown and the selected service name.
func IsPlaceholder(value string, echoes ...string) bool {
	v := Normalize(value)
	if len(strings.Fields(v)) <= maxEchoWords {
		for _, p := range questionPatterns {
			if p.MatchString(v) {
				return true
			}
		}
	}
	for _, p := range placeholderPatterns {
		if p.MatchString(v) {
			return true
		}
	}
	cv := foldText(v)
	if cv == "" {
		return true
	}
	for _, e := range echoes {
		if ce := foldText(e); ce != "" && ce == cv {
			return true
		}
	}
	return false
}

// LooksLikeEmail reports whether s is, or contains, an email address.
func LooksLikeEmail(s string) bool {
	return emailInTextPattern.MatchString(s)
}

// LooksLikePhone reports whether s is phone shaped.
func LooksLikePhone(s string) bool {
	s = strings.TrimSpace(s)
	if !phonePattern.MatchString(s) {
		return false
	}
	digits := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	return digits >= 7 && digits <= 15
}

// ValidateAnswer decides whether raw is an acceptable value for slot, given
// the answers already stored and the texts shown to the user.
func ValidateAnswer(reg *Registry, slot Slot, raw string, answers map[SlotID]Answer, service string, shown ...string) Verdict {
	value := Normalize(raw)
	if value == "" {
		return Reject(ReasonEmpty)
	}

	if slot.ID == SlotOpposingParty && noPartyPattern.MatchString(value) {
		return Reject(ReasonNoOpposingParty)
	}

	echoes := append(reg.Prompts(service), shown...)
	if service != "" {
		echoes = append(echoes, service)
	}
	if IsPlaceholder(value, echoes...) {
		return Reject(ReasonPlaceholder)
	}

	if slot.Check != nil {
		if v := slot.Check(value, CheckContext{Service: service, Answers: answers}); !v.Accepted {
			return v
		}
	}

	for id, a := range answers {
		if id == slot.ID {
			continue
		}
		if strings.EqualFold(Normalize(a.Answer), value) {
			return Reject(ReasonDuplicate)
		}
	}
	return Accept()
}

func checkName(value string, _ CheckContext) Verdict {
	if LooksLikeEmail(value) || LooksLikePhone(value) || len(value) > 120 {
		return Reject(ReasonInvalidName)
	}
	for _, r := range value {
		if unicode.IsLetter(r) {
			return Accept()
		}
	}
	return Reject(ReasonInvalidName)
}

func checkEmail(value string, _ CheckContext) Verdict {
	if !emailPattern.MatchString(value) {
		return Reject(ReasonInvalidEmail)
	}
	return Accept()
}

func checkPhone(value string, _ CheckContext) Verdict {
	if !LooksLikePhone(value) {
		return Reject(ReasonInvalidPhone)
	}
	return Accept()
}

func checkOpposingParty(value string, _ CheckContext) Verdict {
	if LooksLikePhone(value) || LooksLikeEmail(value) {
		return Reject(ReasonLooksLikeContact)
	}
	return Accept()
}

func checkDescription(value string, c CheckContext) Verdict {
	if c.Service != "" && strings.Contains(value, c.Service) {
		return Reject(ReasonContainsService)
	}
	if op, ok := c.Answers[SlotOpposingParty]; ok && strings.EqualFold(Normalize(op.Answer), value) {
		return Reject(ReasonRepeatsOpposingParty)
	}
	return Accept()
}
