package jobs

import (
	"log/slog"
	"os"
	"testing"

	"github.com/evidentgo/suggestengine/internal/core"
)

func TestFilterNonCodeSuggestions(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	tests := []struct {
		name        string
		suggestions []core.Suggestion
		wantLen     int
	}{
		{
			name: "all code files kept",
			suggestions: []core.Suggestion{
				{FilePath: "main.go"},
				{FilePath: "pkg/util.go"},
			},
			wantLen: 2,
		},
		{
			name: "docs and lockfiles dropped",
			suggestions: []core.Suggestion{
				{FilePath: "main.go"},
				{FilePath: "README.md"},
				{FilePath: "go.sum"},
				{FilePath: "pkg/util.go"},
			},
			wantLen: 2,
		},
		{
			name: "minified assets dropped",
			suggestions: []core.Suggestion{
				{FilePath: "dist/bundle.min.js"},
				{FilePath: "src/app.ts"},
			},
			wantLen: 1,
		},
		{
			name: "extensionless build files dropped, unknown extensions kept",
			suggestions: []core.Suggestion{
				{FilePath: "Dockerfile"},
				{FilePath: "api/schema.proto"},
			},
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FilterNonCodeSuggestions(logger, tt.suggestions)
			if len(got) != tt.wantLen {
				t.Errorf("FilterNonCodeSuggestions() got %d suggestions, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestValidateSuggestionsByLine(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	validLines := map[string]map[int]struct{}{
		"main.go": {10: {}, 20: {}},
	}

	suggestions := []core.Suggestion{
		{FilePath: "main.go", LineNumber: 10},
		{FilePath: "main.go", LineNumber: 15},
		{FilePath: "./main.go", LineNumber: 20},
		{FilePath: "other.go", LineNumber: 1},
	}

	inline, offDiff := ValidateSuggestionsByLine(logger, suggestions, validLines)
	if len(inline) != 2 {
		t.Errorf("expected 2 inline suggestions, got %d", len(inline))
	}
	if len(offDiff) != 1 {
		t.Errorf("expected 1 off-diff suggestion, got %d", len(offDiff))
	}

	t.Run("no valid line maps skips validation", func(t *testing.T) {
		inline, offDiff := ValidateSuggestionsByLine(logger, suggestions, nil)
		if len(inline) != len(suggestions) {
			t.Errorf("expected validation to be skipped when no valid files provided, got %d", len(inline))
		}
		if len(offDiff) != 0 {
			t.Errorf("expected no off-diff suggestions when validation is skipped, got %d", len(offDiff))
		}
	})
}
