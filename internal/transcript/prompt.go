// Package transcript holds the text-side half of the pipeline: the
// transcriber prompt, rolling context assembly, output scrubbing, and the
// boilerplate filters applied during finalisation.
//
// Speech models are prone to a known set of failure modes on short noisy
// audio: echoing the prompt back, apologising instead of transcribing,
// and hallucinating repeated phrases. The scrub pipeline here is a
// contract, not a cosmetic cleanup; downstream chunk rows and the final
// transcript depend on it.
package transcript

import (
	"strings"
)

// basePrompt is the bare transcription instruction sent with every chunk.
const basePrompt = `Transcribe this audio literally. Format each utterance as "[Speaker N]: ..." on its own line. If there is no speech, respond with exactly [silence]. If speech is present but unintelligible, respond with exactly [inaudible]. Do not add commentary.`

// contextPreamble introduces the rolling context and forbids repeating it.
const contextPreamble = "The audio continues from earlier speech. For context only, the conversation so far ended with:\n"

// contextSuffix closes the context block.
const contextSuffix = "\nDo not repeat the context above; transcribe only the new audio.\n\n"

// BuildPrompt returns the transcriber prompt for a chunk. When ctx is
// non-empty it is prepended with an explicit do-not-repeat instruction.
func BuildPrompt(ctx string) string {
	if ctx == "" {
		return basePrompt
	}
	var b strings.Builder
	b.WriteString(contextPreamble)
	b.WriteString(ctx)
	b.WriteString(contextSuffix)
	b.WriteString(basePrompt)
	return b.String()
}

// BuildContext assembles the rolling context from recent chunk texts in
// chunk-index order. Texts that are pure silence markers or shorter than
// minChars are dropped; the survivors are joined and tail-cropped to
// charBudget characters.
func BuildContext(texts []string, minChars, charBudget int) string {
	var kept []string
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if len(t) < minChars || isMarkerOnly(t) {
			continue
		}
		kept = append(kept, t)
	}
	if len(kept) == 0 {
		return ""
	}
	joined := strings.Join(kept, "\n")
	if len(joined) > charBudget {
		joined = joined[len(joined)-charBudget:]
	}
	return joined
}

// isMarkerOnly reports whether text carries nothing but silence or
// inaudible markers, with or without speaker labels.
func isMarkerOnly(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(stripSpeakerLabel(line))
		switch strings.ToLower(line) {
		case "", "[silence]", "[inaudible]", "[unclear]", "[no speech]":
		default:
			return false
		}
	}
	return true
}
