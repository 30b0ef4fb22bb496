package score

import (
	"context"
	"strings"
	"unicode"
)

// Heuristic scores a conversation without calling a model: text similarity
// against the expected answer for accuracy, marker phrases for empathy, turn
// timestamps for response time. It is the fallback when no API key is
// configured and the baseline the model scorer is sanity-checked against.
type Heuristic struct{}

var _ Scorer = (*Heuristic)(nil)

func (Heuristic) Score(ctx context.Context, question, expected string, conversation []Turn) (Metrics, error) {
	if len(conversation) == 0 {
		return Metrics{}, ErrEmptyConversation
	}

	responses := agentTexts(conversation)
	if len(responses) == 0 {
		return Metrics{
			Successful:   false,
			ErrorMessage: "no agent responses in conversation",
		}, nil
	}

	accuracy := 0.5
	if expected != "" {
		accuracy = 0.0
		for _, resp := range responses {
			if s := Similarity(resp, expected); s > accuracy {
				accuracy = s
			}
		}
	}

	return Metrics{
		Accuracy:     accuracy,
		Empathy:      empathyScore(responses),
		ResponseTime: firstResponseTime(conversation),
		Successful:   true,
	}, nil
}

// Similarity compares two strings after normalization. The score is the
// longest common subsequence ratio: 2*LCS / (len(a)+len(b)), 0 to 1.
func Similarity(a, b string) float64 {
	a = Normalize(a)
	b = Normalize(b)
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	lcs := lcsLength([]rune(a), []rune(b))
	return 2.0 * float64(lcs) / float64(len([]rune(a))+len([]rune(b)))
}

// Normalize lowercases, strips punctuation, and collapses whitespace.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func lcsLength(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

var (
	acknowledgmentPhrases = []string{
		"i understand", "i hear you", "i see", "i get it",
		"i appreciate", "thanks for", "thank you for",
	}
	apologyPhrases     = []string{"i'm sorry", "i apologize", "we apologize"}
	reassurancePhrases = []string{"don't worry", "we'll help", "i'll help", "we can assist"}
	personalNouns      = []string{"your account", "your card", "your id", "your information", "your request"}
)

// EmpathyMarkers lists the marker phrases found in one response.
func EmpathyMarkers(text string) []string {
	lower := strings.ToLower(text)
	var markers []string
	for _, p := range acknowledgmentPhrases {
		if strings.Contains(lower, p) {
			markers = append(markers, "acknowledgment: "+p)
		}
	}
	for _, p := range apologyPhrases {
		if strings.Contains(lower, p) {
			markers = append(markers, "apology: "+p)
		}
	}
	for _, p := range personalNouns {
		if strings.Contains(lower, p) {
			markers = append(markers, "personalization: "+p)
			break
		}
	}
	for _, p := range reassurancePhrases {
		if strings.Contains(lower, p) {
			markers = append(markers, "reassurance: "+p)
		}
	}
	return markers
}

// empathyScore expects about two markers per response and caps at 1.0.
func empathyScore(responses []string) float64 {
	total := 0
	for _, r := range responses {
		total += len(EmpathyMarkers(r))
	}
	score := float64(total) / float64(2*len(responses))
	if score > 1.0 {
		return 1.0
	}
	return score
}
