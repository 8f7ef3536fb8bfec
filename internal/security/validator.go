package security

import (
	"regexp"
	"strings"
	"unicode"
)

// DetectionCategory names the class of suspicious input a Finding
// belongs to.
type DetectionCategory string

const (
	CategoryPromptInjection        DetectionCategory = "prompt_injection"
	CategoryJailbreak              DetectionCategory = "jailbreak"
	CategoryRoleManipulation       DetectionCategory = "role_manipulation"
	CategorySystemPromptExtraction DetectionCategory = "system_prompt_extraction"
	CategoryExfiltration           DetectionCategory = "exfiltration"
	CategoryHomoglyph              DetectionCategory = "homoglyph"
	CategoryInvisibleChar          DetectionCategory = "invisible_char"
	CategoryMultiTurnExtraction    DetectionCategory = "multi_turn_extraction"
	CategoryMultiTurnOverride      DetectionCategory = "multi_turn_override"
)

// Severity is how urgently a Finding's category should be treated by a
// caller deciding what to do about it.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
)

// categorySeverity is the fixed severity every category carries,
// independent of the specific match.
var categorySeverity = map[DetectionCategory]Severity{
	CategoryPromptInjection:        SeverityCritical,
	CategoryJailbreak:              SeverityCritical,
	CategoryRoleManipulation:       SeverityHigh,
	CategorySystemPromptExtraction: SeverityMedium,
	CategoryExfiltration:           SeverityHigh,
	CategoryHomoglyph:              SeverityMedium,
	CategoryInvisibleChar:          SeverityMedium,
	CategoryMultiTurnExtraction:    SeverityHigh,
	CategoryMultiTurnOverride:      SeverityHigh,
}

// Finding is one suspicious-input detection.
type Finding struct {
	Category DetectionCategory
	Severity Severity
	Detail   string
}

func newFinding(category DetectionCategory, detail string) Finding {
	return Finding{Category: category, Severity: categorySeverity[category], Detail: detail}
}

// ValidationResult is the outcome of validating a single input.
type ValidationResult struct {
	Clean    bool
	Findings []Finding
}

// multiTurnExtractionThreshold and multiTurnOverrideThreshold are the
// per-session attempt counts that flip on a multi-turn finding, split
// across however many turns a determined probe spreads itself over.
const (
	multiTurnExtractionThreshold = 3
	multiTurnOverrideThreshold   = 2
)

var promptInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above)\s+instructions`),
	regexp.MustCompile(`(?i)disregard\s+(the\s+)?(system|previous)\s+prompt`),
	regexp.MustCompile(`(?i)you\s+are\s+now\s+(in\s+)?(developer|debug|unrestricted|dan)\s+mode`),
	regexp.MustCompile(`(?i)new\s+instructions\s*:`),
}

var jailbreakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bDAN\b.{0,20}(mode|prompt)`),
	regexp.MustCompile(`(?i)pretend\s+(that\s+)?you\s+have\s+no\s+(restrictions|limits|guidelines)`),
	regexp.MustCompile(`(?i)act\s+as\s+(an?\s+)?(unfiltered|uncensored|jailbroken)`),
	regexp.MustCompile(`(?i)without\s+any\s+(ethical|moral|safety)\s+(guidelines|restrictions)`),
}

// roleManipulationPatterns catch directives that try to hand the model
// a new identity or standing order that supersedes its own, distinct
// from a one-off jailbreak framing.
var roleManipulationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)from\s+now\s+on,?\s+you\s+(are|will\s+be)\s+`),
	regexp.MustCompile(`(?i)you\s+are\s+no\s+longer\s+(bound|restricted|limited)\s+by`),
	regexp.MustCompile(`(?i)forget\s+(that\s+)?you\s+are\s+an?\s+(ai|assistant|language\s+model)`),
	regexp.MustCompile(`(?i)roleplay\s+as\s+.{0,40}\bwith\s+no\s+restrictions`),
	regexp.MustCompile(`(?i)your\s+new\s+(role|persona|identity)\s+is\s*:`),
}

// systemPromptExtractionPatterns catch probes for the operator's
// instructions short of the harder prompt-injection phrasing above.
var systemPromptExtractionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)reveal\s+(your\s+)?(system\s+prompt|instructions)`),
	regexp.MustCompile(`(?i)what\s+(is|are)\s+your\s+(system\s+prompt|initial\s+instructions)`),
	regexp.MustCompile(`(?i)(print|repeat|show|output)\s+(the\s+)?(system\s+prompt|instructions\s+above|text\s+above|words?\s+above)`),
	regexp.MustCompile(`(?i)repeat\s+everything\s+(above|before\s+this)`),
}

// exfiltrationPatterns catch attempts to turn a tool-executing session
// into a channel for shipping data out: piping a fetch straight into a
// shell, or opening a raw listener/connection.
var exfiltrationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(curl|wget)\b[^\n]{0,80}\|\s*(bash|sh|zsh)\b`),
	regexp.MustCompile(`(?i)\bnc\b[^\n]{0,20}-[a-z]*e\b`),
	regexp.MustCompile(`(?i)\b(curl|wget)\b[^\n]{0,80}\b(attacker|exfil|pastebin|ngrok|webhook)\b`),
}

// isInvisible reports whether r is a Unicode code point that renders as
// nothing but can carry hidden instructions (zero-width space/joiner,
// bidi overrides, tag characters used in the 2023 "ASCII smuggling"
// technique).
func isInvisible(r rune) bool {
	switch r {
	case '​', '‌', '‍', '⁠', '﻿',
		'‪', '‫', '‬', '‭', '‮':
		return true
	}
	return r >= '\U000E0000' && r <= '\U000E007F'
}

// homoglyphConfusables maps a small set of commonly-abused Cyrillic and
// Greek look-alikes back to the Latin letter they impersonate. This is
// intentionally a narrow, high-precision set rather than a full
// confusables table.
var homoglyphConfusables = map[rune]rune{
	'а': 'a', 'е': 'e', 'і': 'i', 'о': 'o', 'р': 'p', 'с': 'c', 'у': 'y', 'х': 'x',
	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Ζ': 'Z', 'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M',
	'Ν': 'N', 'Ο': 'O', 'Ρ': 'P', 'Τ': 'T', 'Χ': 'X',
}

// Validator scans user-supplied input for prompt-injection attempts,
// jailbreak framing, homoglyph substitution, and invisible characters.
// It tracks a short rolling window of recent inputs per session so that
// a multi-turn attack split across messages is still caught, and counts
// extraction/override attempts across that same window.
type Validator struct {
	window             map[string][]string
	extractionAttempts map[string]int
	overrideAttempts   map[string]int
	maxWin             int
}

// NewValidator returns a Validator that remembers up to maxWindow prior
// inputs per session key for multi-turn pattern detection.
func NewValidator(maxWindow int) *Validator {
	if maxWindow <= 0 {
		maxWindow = 5
	}
	return &Validator{
		window:             make(map[string][]string),
		extractionAttempts: make(map[string]int),
		overrideAttempts:   make(map[string]int),
		maxWin:             maxWindow,
	}
}

// Validate checks input in isolation and against the rolling window for
// sessionKey, updates that session's extraction/override attempt
// counters, and pushes input onto the window.
func (v *Validator) Validate(sessionKey, input string) ValidationResult {
	findings := scanText(input)

	if prior, ok := v.window[sessionKey]; ok && len(prior) > 0 {
		combined := strings.Join(append(append([]string{}, prior...), input), " ")
		for _, f := range scanText(combined) {
			if !containsFinding(findings, f) {
				findings = append(findings, f)
			}
		}
	}

	if hasCategory(findings, CategorySystemPromptExtraction) {
		v.extractionAttempts[sessionKey]++
	}
	if hasCategory(findings, CategoryPromptInjection) || hasCategory(findings, CategoryJailbreak) ||
		hasCategory(findings, CategoryRoleManipulation) {
		v.overrideAttempts[sessionKey]++
	}

	if n := v.extractionAttempts[sessionKey]; n >= multiTurnExtractionThreshold {
		findings = append(findings, newFinding(CategoryMultiTurnExtraction, "repeated system-prompt extraction probes across turns"))
	}
	if n := v.overrideAttempts[sessionKey]; n >= multiTurnOverrideThreshold {
		findings = append(findings, newFinding(CategoryMultiTurnOverride, "repeated instruction-override attempts across turns"))
	}

	v.push(sessionKey, input)
	return ValidationResult{Clean: len(findings) == 0, Findings: findings}
}

func (v *Validator) push(sessionKey, input string) {
	buf := append(v.window[sessionKey], input)
	if len(buf) > v.maxWin {
		buf = buf[len(buf)-v.maxWin:]
	}
	v.window[sessionKey] = buf
}

// Reset clears a session's rolling window and attempt counters, e.g.
// when it ends.
func (v *Validator) Reset(sessionKey string) {
	delete(v.window, sessionKey)
	delete(v.extractionAttempts, sessionKey)
	delete(v.overrideAttempts, sessionKey)
}

func containsFinding(findings []Finding, f Finding) bool {
	for _, existing := range findings {
		if existing.Category == f.Category && existing.Detail == f.Detail {
			return true
		}
	}
	return false
}

func hasCategory(findings []Finding, category DetectionCategory) bool {
	for _, f := range findings {
		if f.Category == category {
			return true
		}
	}
	return false
}

// scanText runs every detector against text. Homoglyph and invisible-
// character findings are computed from the raw text, since their whole
// purpose is to flag that obfuscation is present. Every phrase-pattern
// detector instead runs against a normalised copy (invisibles stripped,
// homoglyphs mapped to Latin) so an obfuscated variant of a banned
// phrase is still caught.
func scanText(text string) []Finding {
	var findings []Finding

	var invisibleCount, homoglyphCount int
	for _, r := range text {
		if isInvisible(r) {
			invisibleCount++
		}
		if _, ok := homoglyphConfusables[r]; ok {
			homoglyphCount++
		}
	}
	if invisibleCount > 0 {
		findings = append(findings, newFinding(CategoryInvisibleChar, "contains zero-width or bidi-control characters"))
	}
	// A handful of homoglyphs in ordinary multilingual text is normal;
	// flag only when they appear dense enough to suggest deliberate
	// substitution into what otherwise reads as Latin script.
	if homoglyphCount >= 3 && isMostlyLatin(text) {
		findings = append(findings, newFinding(CategoryHomoglyph, "contains Latin-impersonating Cyrillic/Greek characters"))
	}

	normalized := normalizeForDetection(text)

	for _, p := range promptInjectionPatterns {
		if m := p.FindString(normalized); m != "" {
			findings = append(findings, newFinding(CategoryPromptInjection, m))
		}
	}
	for _, p := range jailbreakPatterns {
		if m := p.FindString(normalized); m != "" {
			findings = append(findings, newFinding(CategoryJailbreak, m))
		}
	}
	for _, p := range roleManipulationPatterns {
		if m := p.FindString(normalized); m != "" {
			findings = append(findings, newFinding(CategoryRoleManipulation, m))
		}
	}
	for _, p := range systemPromptExtractionPatterns {
		if m := p.FindString(normalized); m != "" {
			findings = append(findings, newFinding(CategorySystemPromptExtraction, m))
		}
	}
	for _, p := range exfiltrationPatterns {
		if m := p.FindString(normalized); m != "" {
			findings = append(findings, newFinding(CategoryExfiltration, m))
		}
	}

	return findings
}

func isMostlyLatin(text string) bool {
	var latin, other int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		if r < unicode.MaxASCII {
			latin++
		} else if _, ok := homoglyphConfusables[r]; !ok {
			other++
		}
	}
	return latin > other
}

// normalizeForDetection strips invisible characters and maps homoglyphs
// to the Latin letters they impersonate, so pattern matching runs
// against what the text actually says rather than its obfuscated form.
func normalizeForDetection(text string) string {
	return NormalizeHomoglyphs(stripInvisible(text))
}

func stripInvisible(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isInvisible(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// NormalizeHomoglyphs rewrites confusable characters back to their
// Latin counterpart, for use before matching against allowlists.
func NormalizeHomoglyphs(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if latin, ok := homoglyphConfusables[r]; ok {
			b.WriteRune(latin)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
