// Package catalog provides the static content catalog: chapters,
// supplications and quiz questions.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
)

//go:embed content.yaml
var builtin []byte

// Compile-time interface check.
var _ domain.ContentSource = (*MemorySource)(nil)

// document is the on-disk YAML layout.
type document struct {
	Chapters      []domain.Chapter      `yaml:"chapters"`
	Supplications []domain.Supplication `yaml:"supplications"`
	Questions     []domain.Question     `yaml:"questions"`
}

// MemorySource holds the catalog in memory. Safe for concurrent reads.
// Lookups are linear scans; the catalog is a few dozen records.
type MemorySource struct {
	mu            sync.RWMutex
	chapters      []domain.Chapter
	supplications []domain.Supplication
	questions     []domain.Question
	log           *logger.Logger
}

// NewMemorySource creates a source preloaded with the built-in catalog.
func NewMemorySource(log *logger.Logger) (*MemorySource, error) {
	return Parse(builtin, log)
}

// Load reads a catalog from a YAML file, replacing the built-in content.
func Load(path string, log *logger.Logger) (*MemorySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	src, err := Parse(data, log)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return src, nil
}

// Parse decodes and validates a YAML catalog.
func Parse(data []byte, log *logger.Logger) (*MemorySource, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	if err := validate(&doc); err != nil {
		return nil, err
	}

	sort.SliceStable(doc.Chapters, func(i, j int) bool {
		return doc.Chapters[i].Number < doc.Chapters[j].Number
	})

	log.Debug("catalog loaded: %d chapters, %d supplications, %d questions",
		len(doc.Chapters), len(doc.Supplications), len(doc.Questions))

	return &MemorySource{
		chapters:      doc.Chapters,
		supplications: doc.Supplications,
		questions:     doc.Questions,
		log:           log,
	}, nil
}

func validate(doc *document) error {
	seenCh := make(map[int]bool)
	for _, c := range doc.Chapters {
		if c.Number <= 0 {
			return fmt.Errorf("chapter %q: number must be positive", c.Name)
		}
		if seenCh[c.Number] {
			return fmt.Errorf("chapter %d: %w", c.Number, domain.ErrAlreadyExists)
		}
		seenCh[c.Number] = true
		if c.AudioURL == "" {
			return fmt.Errorf("chapter %d: missing audio_url", c.Number)
		}
	}

	seenSup := make(map[string]bool)
	for _, s := range doc.Supplications {
		if s.ID == "" {
			return fmt.Errorf("supplication %q: missing id", s.Title)
		}
		if seenSup[s.ID] {
			return fmt.Errorf("supplication %s: %w", s.ID, domain.ErrAlreadyExists)
		}
		seenSup[s.ID] = true
	}

	seenQ := make(map[string]bool)
	for _, q := range doc.Questions {
		if q.ID == "" {
			return fmt.Errorf("question %q: missing id", q.Prompt)
		}
		if seenQ[q.ID] {
			return fmt.Errorf("question %s: %w", q.ID, domain.ErrAlreadyExists)
		}
		seenQ[q.ID] = true
		if len(q.Choices) < 2 {
			return fmt.Errorf("question %s: needs at least 2 choices", q.ID)
		}
		if q.Answer < 0 || q.Answer >= len(q.Choices) {
			return fmt.Errorf("question %s: answer %d out of range", q.ID, q.Answer)
		}
	}
	return nil
}

// ── Chapters ─────────────────────────────────────────────────────

// Chapters returns all chapters ordered by number.
func (s *MemorySource) Chapters(ctx context.Context) ([]domain.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Chapter, len(s.chapters))
	copy(out, s.chapters)
	return out, nil
}

// Chapter returns a chapter by its number.
func (s *MemorySource) Chapter(ctx context.Context, number int) (*domain.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.chapters {
		if s.chapters[i].Number == number {
			c := s.chapters[i]
			return &c, nil
		}
	}
	s.log.Debug("chapter not found: %d", number)
	return nil, domain.ErrNotFound
}

// FindChapter resolves free text to a chapter. A bare number only ever
// means a chapter number; anything else is matched against names and
// keywords.
func (s *MemorySource) FindChapter(ctx context.Context, query string) (*domain.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := normalize(query)
	if q == "" {
		return nil, domain.ErrNotFound
	}

	if n, ok := leadingNumber(q); ok {
		for i := range s.chapters {
			if s.chapters[i].Number == n {
				c := s.chapters[i]
				return &c, nil
			}
		}
		s.log.Debug("no chapter number %d", n)
		return nil, domain.ErrNotFound
	}

	best, bestScore := -1, 0
	for i, c := range s.chapters {
		score := matchScore(q, c.Name, c.Translation, c.Keywords)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		s.log.Debug("no chapter matches %q", query)
		return nil, domain.ErrNotFound
	}
	c := s.chapters[best]
	return &c, nil
}

// ── Supplications ────────────────────────────────────────────────

// Supplications returns all supplications in catalog order.
func (s *MemorySource) Supplications(ctx context.Context) ([]domain.Supplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Supplication, len(s.supplications))
	copy(out, s.supplications)
	return out, nil
}

// Supplication returns a supplication by ID.
func (s *MemorySource) Supplication(ctx context.Context, id string) (*domain.Supplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.supplications {
		if s.supplications[i].ID == id {
			sup := s.supplications[i]
			return &sup, nil
		}
	}
	return nil, domain.ErrNotFound
}

// FindSupplication resolves free text to a supplication: a bare number is
// a 1-based list position, an exact ID wins, otherwise titles and keywords
// are scored.
func (s *MemorySource) FindSupplication(ctx context.Context, query string) (*domain.Supplication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := normalize(query)
	if q == "" {
		return nil, domain.ErrNotFound
	}

	if n, ok := leadingNumber(q); ok && n >= 1 && n <= len(s.supplications) {
		sup := s.supplications[n-1]
		return &sup, nil
	}

	best, bestScore := -1, 0
	for i, sup := range s.supplications {
		if strings.EqualFold(sup.ID, strings.TrimSpace(query)) {
			out := sup
			return &out, nil
		}
		score := matchScore(q, sup.Title, "", sup.Keywords)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return nil, domain.ErrNotFound
	}
	sup := s.supplications[best]
	return &sup, nil
}

// ── Questions ────────────────────────────────────────────────────

// Questions returns the whole question bank in catalog order.
func (s *MemorySource) Questions(ctx context.Context) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Question, len(s.questions))
	copy(out, s.questions)
	return out, nil
}

// Question returns a question by ID.
func (s *MemorySource) Question(ctx context.Context, id string) (*domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.questions {
		if s.questions[i].ID == id {
			q := s.questions[i]
			return &q, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ── Matching ─────────────────────────────────────────────────────

// matchScore rates how well a normalized query names a record. Zero means
// no match.
func matchScore(q, name, alt string, keywords []string) int {
	padded := " " + q + " "
	score := 0
	bump := func(n int) {
		if n > score {
			score = n
		}
	}

	for _, field := range []string{name, alt} {
		f := normalize(field)
		if f == "" {
			continue
		}
		switch {
		case f == q:
			bump(5)
		case strings.Contains(padded, " "+f+" "):
			bump(4)
		case strings.Contains(" "+f+" ", padded):
			bump(3)
		}
	}
	for _, kw := range keywords {
		k := normalize(kw)
		if k == "" {
			continue
		}
		if strings.Contains(padded, " "+k+" ") {
			// Longer keywords are more specific.
			bump(2 + min(len(strings.Fields(k))-1, 1))
		} else if len(q) >= 3 && strings.HasPrefix(k, q) {
			bump(1)
		}
	}
	return score
}

// normalize lowercases, drops apostrophes and turns every other
// non-alphanumeric rune into a single space.
func normalize(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		default:
			if !space {
				b.WriteByte(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// leadingNumber extracts a number from queries like "112", "number 3" or
// "chapter 2".
func leadingNumber(q string) (int, bool) {
	fields := strings.Fields(q)
	for len(fields) > 1 {
		switch fields[0] {
		case "number", "chapter", "surah", "sura", "play", "open", "read":
			fields = fields[1:]
			continue
		}
		break
	}
	if len(fields) != 1 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, false
	}
	return n, true
}
