package catalog

import (
	_ "embed"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed faq.yaml
var faqYAML []byte

type faqEntry struct {
	ID        string   `yaml:"id"`
	Questions []string `yaml:"questions"`
	Answer    string   `yaml:"answer"`
}

// FAQ is the fixed question/answer catalog with a similarity matcher.
type FAQ struct {
	entries   []faqEntry
	threshold float64
}

// LoadFAQ parses the embedded FAQ catalog. Matches below threshold are
// treated as no-match.
func LoadFAQ(threshold float64) (*FAQ, error) {
	var entries []faqEntry
	if err := yaml.Unmarshal(faqYAML, &entries); err != nil {
		return nil, err
	}
	return &FAQ{entries: entries, threshold: threshold}, nil
}

func MustLoadFAQ(threshold float64) *FAQ {
	f, err := LoadFAQ(threshold)
	if err != nil {
		panic(err)
	}
	return f
}

// Match returns the best answer for the normalized question text, its
// similarity score, and whether the score clears the threshold.
func (f *FAQ) Match(text string) (answer string, score float64, ok bool) {
	qt := tokenSet(text)
	if len(qt) == 0 {
		return "", 0, false
	}
	bestScore := 0.0
	bestAnswer := ""
	for _, e := range f.entries {
		for _, q := range e.Questions {
			s := jaccard(qt, tokenSet(q))
			if s > bestScore {
				bestScore = s
				bestAnswer = e.Answer
			}
		}
	}
	if bestScore < f.threshold {
		return bestAnswer, bestScore, false
	}
	return bestAnswer, bestScore, true
}

// Stop words carry no signal for question matching.
var faqStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "do": true,
	"does": true, "i": true, "you": true, "your": true, "my": true, "to": true,
	"of": true, "can": true, "please": true, "me": true, "tell": true,
}

func tokenSet(text string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?;:'\"")
		if w == "" || faqStopWords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if b[w] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
