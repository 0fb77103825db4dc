package transcript

import (
	"regexp"
	"strings"
)

// Markers the scrub pipeline can emit in place of unusable output.
const (
	MarkerSilence = "[silence]"
	MarkerUnclear = "[unclear]"
)

// speakerLineRe matches a speaker-labelled utterance.
var speakerLineRe = regexp.MustCompile(`\[Speaker \d+\]:`)

// speakerTailRe captures from the first speaker label to end of text.
var speakerTailRe = regexp.MustCompile(`(?s)\[Speaker \d+\]:.*`)

// nonVerbalLineRe matches a speaker line whose content is a single
// bracketed non-verbal token such as [silence] or [music].
var nonVerbalLineRe = regexp.MustCompile(`^\[Speaker \d+\]:\s*\[[a-zA-Z -]+\]\s*$`)

// refusalPreambleRes strip model chatter that precedes (or replaces) the
// transcription. Applied repeatedly to the head of the text.
var refusalPreambleRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^i('m| am) (sorry|afraid)[^.\n]*[.\n]`),
	regexp.MustCompile(`(?i)^i (cannot|can't|am unable to) (process|transcribe|hear|access)[^.\n]*[.\n]`),
	regexp.MustCompile(`(?i)^(sure[,!]? )?here('s| is) (the |a |your )?transcri\w+[^:\n]*[:\n]`),
	regexp.MustCompile(`(?i)^(the )?transcription( is)?:`),
	regexp.MustCompile(`(?i)^as an ai[^.\n]*[.\n]`),
	regexp.MustCompile(`(?i)^okay[,.]? `),
}

// refusalMarkerRe detects apology text that survived preamble stripping.
var refusalMarkerRe = regexp.MustCompile(`(?i)\b(i cannot|i can't|i'm unable|i am unable|as an ai|i apologize|i'm sorry)\b`)

// Scrub cleans raw transcriber output. prompt is the exact prompt sent
// with the request, used to strip echoes. The steps run in a fixed order;
// the result is never empty (unusable output collapses to a marker).
func Scrub(raw, prompt string) string {
	text := strings.TrimSpace(raw)

	text = stripPromptEcho(text, prompt)
	hadRefusal := refusalMarkerRe.MatchString(text)
	text = stripRefusalPreambles(text)

	if text == "" && hadRefusal {
		// The entire output was apology chatter.
		return MarkerUnclear
	}
	if refusalMarkerRe.MatchString(text) && !speakerLineRe.MatchString(text) {
		return MarkerUnclear
	}
	if refusalMarkerRe.MatchString(text) {
		// Apology mixed with real content: keep from the first speaker
		// label onward.
		if m := speakerTailRe.FindString(text); m != "" {
			text = m
		}
	}

	text = dedupConsecutiveLines(text)
	text = dropRepeatedPhrases(text)

	if allNonVerbal(text) && len(text) < 200 {
		return MarkerSilence
	}
	if strings.TrimSpace(text) == "" {
		return MarkerSilence
	}
	return strings.TrimSpace(text)
}

// stripPromptEcho drops leading lines that appear verbatim in the prompt.
func stripPromptEcho(text, prompt string) string {
	if prompt == "" {
		return text
	}
	promptLines := make(map[string]bool)
	for _, l := range strings.Split(prompt, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			promptLines[l] = true
		}
	}
	lines := strings.Split(text, "\n")
	i := 0
	for i < len(lines) {
		l := strings.TrimSpace(lines[i])
		if l == "" || promptLines[l] {
			i++
			continue
		}
		break
	}
	return strings.TrimSpace(strings.Join(lines[i:], "\n"))
}

// stripRefusalPreambles repeatedly removes known chatter patterns from the
// head of the text.
func stripRefusalPreambles(text string) string {
	for {
		before := text
		for _, re := range refusalPreambleRes {
			text = strings.TrimSpace(re.ReplaceAllString(text, ""))
		}
		if text == before {
			return text
		}
	}
}

// dedupConsecutiveLines keeps the first of any run of identical lines.
func dedupConsecutiveLines(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	prev := "\x00"
	for _, l := range lines {
		if strings.TrimSpace(l) == strings.TrimSpace(prev) && strings.TrimSpace(l) != "" {
			continue
		}
		out = append(out, l)
		prev = l
	}
	return strings.Join(out, "\n")
}

// phraseWindow is the hallucination-detection n-gram size.
const phraseWindow = 5

// phraseRepeatLimit is the repeat count at which a window is treated as a
// hallucination loop.
const phraseRepeatLimit = 4

// dropRepeatedPhrases detects phrase-level hallucination: when any
// 5-word window repeats at least 4 times, every occurrence after the
// first is removed. Whitespace is normalised only when a loop is found.
func dropRepeatedPhrases(text string) string {
	words := strings.Fields(text)
	if len(words) < phraseWindow*phraseRepeatLimit {
		return text
	}

	counts := make(map[string]int)
	for i := 0; i+phraseWindow <= len(words); i++ {
		counts[strings.Join(words[i:i+phraseWindow], " ")]++
	}

	looping := make(map[string]bool)
	for gram, n := range counts {
		if n >= phraseRepeatLimit {
			looping[gram] = true
		}
	}
	if len(looping) == 0 {
		return text
	}

	seen := make(map[string]bool)
	var out []string
	for i := 0; i < len(words); {
		if i+phraseWindow <= len(words) {
			gram := strings.Join(words[i:i+phraseWindow], " ")
			if looping[gram] {
				if seen[gram] {
					i += phraseWindow
					continue
				}
				seen[gram] = true
				out = append(out, words[i:i+phraseWindow]...)
				i += phraseWindow
				continue
			}
		}
		out = append(out, words[i])
		i++
	}
	return strings.Join(out, " ")
}

// allNonVerbal reports whether every non-empty line is a speaker-labelled
// non-verbal token or a bare marker.
func allNonVerbal(text string) bool {
	any := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		any = true
		if nonVerbalLineRe.MatchString(line) {
			continue
		}
		switch strings.ToLower(line) {
		case "[silence]", "[inaudible]", "[unclear]", "[no speech]":
		default:
			return false
		}
	}
	return any
}

// stripSpeakerLabel removes a leading "[Speaker N]:" label if present.
func stripSpeakerLabel(line string) string {
	if loc := speakerLineRe.FindStringIndex(line); loc != nil && loc[0] == 0 {
		return line[loc[1]:]
	}
	return line
}
