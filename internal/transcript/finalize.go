package transcript

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

// boilerplatePhrases are transcriber outputs that describe the model
// rather than the audio. Chunk texts matching one of these (exactly or
// fuzzily) are dropped from the final transcript.
var boilerplatePhrases = []string{
	"i cannot process audio",
	"i am unable to transcribe this audio",
	"no audible speech detected",
	"there is no speech in this audio",
	"please provide the audio file",
	"thank you for watching",
	"thanks for watching",
	"subtitles by the amara.org community",
	"don't forget to like and subscribe",
}

// boilerplateSimilarity is the Jaro-Winkler score at or above which a
// chunk text is treated as a known boilerplate phrase. Real speech that
// merely contains similar words stays below it.
const boilerplateSimilarity = 0.92

// IsBoilerplate reports whether a chunk text should be dropped from the
// final transcript: silence markers, refusal text, and the stock
// hallucinated sign-off phrases speech models emit on noise.
func IsBoilerplate(text string) bool {
	norm := normalizeForMatch(text)
	if norm == "" {
		return true
	}
	switch norm {
	case "silence", "inaudible", "unclear", "no speech":
		return true
	}
	for _, phrase := range boilerplatePhrases {
		if strings.Contains(norm, phrase) {
			return true
		}
		// Fuzzy match catches minor rewordings ("Thanks so much for
		// watching!") without a phrase-list entry per variant.
		if matchr.JaroWinkler(norm, phrase, false) >= boilerplateSimilarity {
			return true
		}
	}
	return false
}

// JoinChunks builds the final transcript from chunk texts in index order,
// dropping boilerplate entries and joining survivors with blank lines.
func JoinChunks(texts []string) string {
	var kept []string
	for _, t := range texts {
		if IsBoilerplate(t) {
			continue
		}
		kept = append(kept, strings.TrimSpace(t))
	}
	return strings.Join(kept, "\n\n")
}

// normalizeForMatch lowercases, strips speaker labels, brackets, and
// punctuation, and collapses whitespace.
func normalizeForMatch(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(stripSpeakerLabel(line))
		if line != "" {
			lines = append(lines, line)
		}
	}
	s := strings.ToLower(strings.Join(lines, " "))
	s = strings.NewReplacer("[", "", "]", "", ".", "", ",", "", "!", "", "?", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// summaryHallucinationRes match summary sentences describing things that
// audiobook-trained models invent: narrators, listeners, sign-offs. A
// matching sentence is dropped unless the transcript itself contains the
// trigger word.
var summaryHallucinationRes = []struct {
	re      *regexp.Regexp
	trigger string
}{
	{regexp.MustCompile(`(?i)\baudiobook\b`), "audiobook"},
	{regexp.MustCompile(`(?i)\bthank(s|ed)? the listeners?\b`), "listener"},
	{regexp.MustCompile(`(?i)\bthe narrator\b`), "narrator"},
	{regexp.MustCompile(`(?i)\bsigns? off\b`), "sign"},
}

// summaryMetaRe strips meta framing from the head of the summary.
var summaryMetaRe = regexp.MustCompile(`(?i)^(here('s| is) (a |the )?(brief |concise )?summary[^:\n]*[:\n]|summary:)\s*`)

// ScrubSummary post-processes the summarizer output against the final
// transcript, removing hallucinated sentences whose subject matter never
// appears in the transcript and stripping meta phrasing.
func ScrubSummary(summary, transcriptText string) string {
	s := strings.TrimSpace(summary)
	s = summaryMetaRe.ReplaceAllString(s, "")

	lowerTranscript := strings.ToLower(transcriptText)
	sentences := splitSentences(s)
	var kept []string
	for _, sent := range sentences {
		drop := false
		for _, h := range summaryHallucinationRes {
			if h.re.MatchString(sent) && !strings.Contains(lowerTranscript, h.trigger) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, sent)
		}
	}
	return strings.TrimSpace(strings.Join(kept, " "))
}

// splitSentences splits on sentence-ending punctuation, keeping the
// terminator with the sentence. Good enough for summary prose.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			sent := strings.TrimSpace(s[start : i+1])
			if sent != "" {
				out = append(out, sent)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(s[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}
