// Package domain defines the core types and interfaces of the assistant.
// All other packages depend on domain; domain depends on nothing.
package domain

// Chapter is a recitable chapter with its streaming audio location.
type Chapter struct {
	Number      int      `yaml:"number"`
	Name        string   `yaml:"name"`
	Translation string   `yaml:"translation"`
	Verses      int      `yaml:"verses"`
	AudioURL    string   `yaml:"audio_url"`
	Keywords    []string `yaml:"keywords"`
}

// Supplication is a short text that can be browsed and read aloud.
type Supplication struct {
	ID              string   `yaml:"id"`
	Title           string   `yaml:"title"`
	Arabic          string   `yaml:"arabic"`
	Transliteration string   `yaml:"transliteration"`
	Translation     string   `yaml:"translation"`
	Keywords        []string `yaml:"keywords"`
}

// Question is a multiple-choice quiz question. Answer indexes Choices.
type Question struct {
	ID          string   `yaml:"id"`
	Prompt      string   `yaml:"prompt"`
	Choices     []string `yaml:"choices"`
	Answer      int      `yaml:"answer"`
	Explanation string   `yaml:"explanation"`
}

// CorrectChoice returns the text of the correct choice.
func (q *Question) CorrectChoice() string {
	if q.Answer < 0 || q.Answer >= len(q.Choices) {
		return ""
	}
	return q.Choices[q.Answer]
}

// ChoiceLetter returns "A", "B", ... for a 0-based choice index.
func ChoiceLetter(i int) string {
	if i < 0 || i >= 26 {
		return "?"
	}
	return string(rune('A' + i))
}
