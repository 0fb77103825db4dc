package transcript

import (
	"strings"
	"testing"
)

func TestIsBoilerplate(t *testing.T) {
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"silence marker", "[silence]", true},
		{"labelled silence", "[Speaker 1]: [silence]", true},
		{"inaudible", "[inaudible]", true},
		{"unclear", "[unclear]", true},
		{"empty", "   ", true},
		{"refusal", "I cannot process audio directly.", true},
		{"whisper signoff", "[Speaker 1]: Thank you for watching!", true},
		{"signoff variant", "Thanks for watching.", true},
		{"subtitle credit", "Subtitles by the Amara.org community", true},
		{"real speech", "[Speaker 1]: Let's move the launch to next Tuesday.", false},
		{"speech mentioning watching", "[Speaker 1]: I was watching the logs scroll by while you spoke for quite a while.", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsBoilerplate(tc.text); got != tc.want {
				t.Errorf("IsBoilerplate(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}

func TestJoinChunks(t *testing.T) {
	texts := []string{
		"[Speaker 1]: Welcome to the standup.",
		"[silence]",
		"[Speaker 2]: Backend is on track.",
		"Thank you for watching",
		"[Speaker 1]: Frontend ships Thursday.",
	}
	got := JoinChunks(texts)
	want := "[Speaker 1]: Welcome to the standup.\n\n[Speaker 2]: Backend is on track.\n\n[Speaker 1]: Frontend ships Thursday."
	if got != want {
		t.Errorf("got %q\nwant %q", got, want)
	}
}

func TestJoinChunksAllBoilerplate(t *testing.T) {
	if got := JoinChunks([]string{"[silence]", "[inaudible]"}); got != "" {
		t.Errorf("got %q, want empty transcript", got)
	}
}

func TestScrubSummaryDropsHallucinatedSentences(t *testing.T) {
	transcript := "[Speaker 1]: We reviewed the incident timeline.\n\n[Speaker 2]: Root cause was the retry storm."
	summary := "The speakers reviewed an incident timeline. The narrator thanked the listeners for tuning in. Root cause was identified as a retry storm."
	got := ScrubSummary(summary, transcript)
	if strings.Contains(got, "listeners") || strings.Contains(got, "narrator") {
		t.Errorf("hallucinated sentence survived: %q", got)
	}
	if !strings.Contains(got, "incident timeline") || !strings.Contains(got, "retry storm") {
		t.Errorf("real sentences lost: %q", got)
	}
}

func TestScrubSummaryKeepsSentenceWhenTranscriptMentionsIt(t *testing.T) {
	transcript := "[Speaker 1]: I finished recording the audiobook chapter yesterday."
	summary := "The speaker finished recording an audiobook chapter."
	got := ScrubSummary(summary, transcript)
	if !strings.Contains(got, "audiobook") {
		t.Errorf("legitimate audiobook mention dropped: %q", got)
	}
}

func TestScrubSummaryStripsMetaFraming(t *testing.T) {
	got := ScrubSummary("Here is a brief summary: The team agreed on the rollout plan.", "rollout plan discussion")
	if strings.Contains(strings.ToLower(got), "here is") {
		t.Errorf("meta framing survived: %q", got)
	}
	if !strings.Contains(got, "rollout plan") {
		t.Errorf("content lost: %q", got)
	}
}
