package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hammamikhairi/iqra/internal/domain"
	"github.com/hammamikhairi/iqra/internal/logger"
)

func setupSource(t *testing.T) *MemorySource {
	t.Helper()
	src, err := NewMemorySource(logger.New(logger.LevelOff, nil))
	if err != nil {
		t.Fatalf("loading built-in catalog: %v", err)
	}
	return src
}

func TestBuiltinCatalogIsValid(t *testing.T) {
	src := setupSource(t)
	ctx := context.Background()

	chapters, _ := src.Chapters(ctx)
	if len(chapters) < 10 {
		t.Fatalf("expected at least 10 chapters, got %d", len(chapters))
	}
	for i := 1; i < len(chapters); i++ {
		if chapters[i-1].Number >= chapters[i].Number {
			t.Fatalf("chapters not ordered: %d before %d", chapters[i-1].Number, chapters[i].Number)
		}
	}

	questions, _ := src.Questions(ctx)
	if len(questions) < 5 {
		t.Fatalf("expected at least 5 questions, got %d", len(questions))
	}
	sups, _ := src.Supplications(ctx)
	if len(sups) < 5 {
		t.Fatalf("expected at least 5 supplications, got %d", len(sups))
	}
}

func TestFindChapter(t *testing.T) {
	src := setupSource(t)
	ctx := context.Background()

	tests := []struct {
		query string
		want  int
	}{
		{"112", 112},
		{"chapter 114", 114},
		{"1", 1},
		{"ikhlas", 112},
		{"surah al ikhlas", 112},
		{"Al-Fatiha", 1},
		{"the opening", 1},
		{"the elephant", 105},
		{"play nas", 114},
		{"an nasr", 110},
		{"kawthar", 108},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, err := src.FindChapter(ctx, tt.query)
			if err != nil {
				t.Fatalf("FindChapter(%q): %v", tt.query, err)
			}
			if c.Number != tt.want {
				t.Fatalf("FindChapter(%q) = %d (%s), want %d", tt.query, c.Number, c.Name, tt.want)
			}
		})
	}
}

func TestFindChapterMiss(t *testing.T) {
	src := setupSource(t)
	// Numbers are chapter numbers, never positions in the list.
	for _, q := range []string{"", "   ", "pizza recipe", "999", "2", "chapter 3", "play 4"} {
		if _, err := src.FindChapter(context.Background(), q); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("FindChapter(%q): expected ErrNotFound, got %v", q, err)
		}
	}
}

func TestFindSupplication(t *testing.T) {
	src := setupSource(t)
	ctx := context.Background()

	tests := []struct {
		query string
		want  string
	}{
		{"1", "before-eating"},
		{"before-sleeping", "before-sleeping"},
		{"the dua for sleeping", "before-sleeping"},
		{"after eating", "after-eating"},
		{"travel", "travelling"},
		{"my parents", "for-parents"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			s, err := src.FindSupplication(ctx, tt.query)
			if err != nil {
				t.Fatalf("FindSupplication(%q): %v", tt.query, err)
			}
			if s.ID != tt.want {
				t.Fatalf("FindSupplication(%q) = %s, want %s", tt.query, s.ID, tt.want)
			}
		})
	}
}

func TestParseRejectsInvalidCatalog(t *testing.T) {
	log := logger.New(logger.LevelOff, nil)

	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			"duplicate chapter",
			"chapters:\n  - {number: 1, name: A, audio_url: x}\n  - {number: 1, name: B, audio_url: y}\n",
			"already exists",
		},
		{
			"missing audio",
			"chapters:\n  - {number: 1, name: A}\n",
			"missing audio_url",
		},
		{
			"answer out of range",
			"questions:\n  - {id: q, prompt: p, choices: [a, b], answer: 2}\n",
			"out of range",
		},
		{
			"too few choices",
			"questions:\n  - {id: q, prompt: p, choices: [a], answer: 0}\n",
			"at least 2",
		},
		{
			"unknown field",
			"chapterz: []\n",
			"decoding catalog",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), log)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "content.yaml")
	doc := `
chapters:
  - number: 2
    name: Al-Baqarah
    translation: The Cow
    audio_url: https://example.com/002.mp3
    keywords: [baqarah, cow]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := Load(path, logger.New(logger.LevelOff, nil))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c, err := src.FindChapter(context.Background(), "the cow")
	if err != nil || c.Number != 2 {
		t.Fatalf("expected chapter 2, got %+v, %v", c, err)
	}
	if _, err := src.Chapter(context.Background(), 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("override should replace built-in chapters, got %v", err)
	}
}
