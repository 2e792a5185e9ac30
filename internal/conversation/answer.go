package conversation

import (
	"strconv"
	"strings"
	"unicode"
)

// letters maps spoken letter names, and what recognizers tend to hear for
// them, to choice indices.
var letters = map[string]int{
	"a": 0, "ay": 0, "eh": 0,
	"b": 1, "be": 1, "bee": 1,
	"c": 2, "see": 2, "sea": 2, "si": 2,
	"d": 3, "dee": 3, "di": 3,
}

var ordinals = map[string]int{
	"first": 0, "second": 1, "third": 2, "fourth": 3, "fifth": 4,
}

var numberWords = map[string]string{
	"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
	"ten": "10", "eleven": "11", "twelve": "12",
}

// fillers are stripped from the front of an answer. Longer phrases come
// first so "the answer is" wins over "the".
var fillers = []string{
	"i think its", "i think it is", "i think", "i believe", "maybe",
	"the answer is", "my answer is", "answer is", "answer",
	"it is", "its", "is it", "i choose", "i pick",
	"option", "letter", "choice", "number", "the",
}

var trailers = []string{"one", "option", "answer", "choice", "please"}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "its": true, "that": true,
	"this": true, "with": true, "think": true, "answer": true,
}

// MatchChoice maps a spoken or typed answer onto one of the choices. It
// accepts the choice text itself, a letter ("b", "bee"), an ordinal
// ("second"), a 1-based number, or failing those, the choice sharing the
// most words with the answer. The second result is false when nothing
// matches or the best match is ambiguous.
func MatchChoice(answer string, choices []string) (int, bool) {
	a := canonical(answer)
	if a == "" || len(choices) == 0 {
		return 0, false
	}

	for i, c := range choices {
		if canonical(c) == a {
			return i, true
		}
	}

	if i, ok := letters[a]; ok && i < len(choices) {
		return i, true
	}
	if i, ok := ordinals[a]; ok && i < len(choices) {
		return i, true
	}
	if a == "last" {
		return len(choices) - 1, true
	}
	if n, err := strconv.Atoi(a); err == nil && n >= 1 && n <= len(choices) {
		return n - 1, true
	}

	return bestOverlap(a, choices)
}

// bestOverlap scores each choice by how much of it appears in the answer.
func bestOverlap(a string, choices []string) (int, bool) {
	words := strings.Fields(a)
	squashed := strings.ReplaceAll(a, " ", "")

	best, bestScore, tied := -1, 0, false
	for i, c := range choices {
		cc := canonical(c)
		if cc == "" {
			continue
		}
		score := 0
		if strings.Contains(squashed, strings.ReplaceAll(cc, " ", "")) {
			score += 10
		}
		choiceWords := make(map[string]bool)
		for _, w := range strings.Fields(cc) {
			choiceWords[w] = true
		}
		for _, w := range words {
			if len(w) >= 3 && !stopwords[w] && choiceWords[w] {
				score++
			}
		}

		switch {
		case score > bestScore:
			best, bestScore, tied = i, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if best < 0 || tied {
		return 0, false
	}
	return best, true
}

// canonical lowercases, turns punctuation into spaces, strips leading
// filler phrases and trailing filler words, and spells small numbers as
// digits.
func canonical(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	t := strings.Join(strings.Fields(b.String()), " ")

	for changed := true; changed; {
		changed = false
		for _, f := range fillers {
			if strings.HasPrefix(t, f+" ") {
				t = strings.TrimPrefix(t, f+" ")
				changed = true
				break
			}
		}
	}

	fields := strings.Fields(t)
	for len(fields) > 1 && contains(trailers, fields[len(fields)-1]) {
		fields = fields[:len(fields)-1]
	}
	for i, f := range fields {
		if d, ok := numberWords[f]; ok {
			fields[i] = d
		}
	}
	return strings.Join(fields, " ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
