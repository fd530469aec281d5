package evidence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentgo/suggestengine/internal/suggest/core"
)

type fakeIndex struct {
	files map[string]core.FileIndex
}

func (f fakeIndex) Files() map[string]core.FileIndex { return f.files }

type fakeWorkContext struct {
	branch  string
	changed []string
}

func (f fakeWorkContext) Branch() string            { return f.branch }
func (f fakeWorkContext) AllChangedFiles() []string { return f.changed }

func writeRepoFile(t *testing.T, root, rel string, lines int) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	content := ""
	for i := 1; i <= lines; i++ {
		content += "line content here\n"
	}
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestBuildPack_Deterministic(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "src/hot.go", 100)
	writeRepoFile(t, root, "src/core.go", 50)

	files := map[string]core.FileIndex{
		"src/hot.go": {
			Path:       "src/hot.go",
			LOC:        100,
			Complexity: 25,
			Symbols: []core.FileIndexSymbol{
				{Kind: "Function", Name: "Process", Line: 10, Complexity: 30, LineCount: 20},
			},
		},
		"src/core.go": {
			Path:       "src/core.go",
			LOC:        50,
			Complexity: 5,
			Summary:    core.FileSummary{UsedBy: []string{"a", "b", "c", "d"}},
		},
	}
	idx := fakeIndex{files: files}
	ctx := fakeWorkContext{branch: "main", changed: []string{"src/hot.go"}}

	items1, stats1, err := BuildPack(root, idx, ctx)
	require.NoError(t, err)
	items2, stats2, err := BuildPack(root, idx, ctx)
	require.NoError(t, err)

	assert.Equal(t, items1, items2)
	assert.Equal(t, stats1, stats2)
	assert.NotEmpty(t, items1)

	seen := map[[2]interface{}]bool{}
	for i, item := range items1 {
		assert.Equal(t, i, item.ID)
		key := [2]interface{}{item.File, item.Line}
		assert.False(t, seen[key], "duplicate (file, line) pair admitted")
		seen[key] = true
	}
	assert.GreaterOrEqual(t, stats1.Line1Ratio, 0.0)
	assert.LessOrEqual(t, stats1.Line1Ratio, 1.0)
}

func TestBuildPack_PerFileQuota(t *testing.T) {
	root := t.TempDir()
	writeRepoFile(t, root, "src/big.go", 2000)

	symbols := make([]core.FileIndexSymbol, 0, 20)
	for i := 0; i < 20; i++ {
		symbols = append(symbols, core.FileIndexSymbol{
			Kind: "Function", Name: "f", Line: 10 + i*10, Complexity: float64(20 - i), LineCount: 5,
		})
	}
	files := map[string]core.FileIndex{
		"src/big.go": {Path: "src/big.go", LOC: 2000, Complexity: 40, Symbols: symbols},
	}
	idx := fakeIndex{files: files}
	ctx := fakeWorkContext{changed: []string{"src/big.go"}}

	items, _, err := BuildPack(root, idx, ctx)
	require.NoError(t, err)

	perFile := map[string]int{}
	for _, item := range items {
		perFile[item.File]++
	}
	for file, count := range perFile {
		assert.LessOrEqual(t, count, core.PerFileMax, "file %s exceeded per-file quota", file)
	}
}

func TestRedactSecrets(t *testing.T) {
	in := `api_key = "sk-abc123def456ghijklmno"`
	out := RedactSecrets(in)
	assert.Contains(t, out, "<redacted-secret>")
	assert.NotContains(t, out, "sk-abc123def456ghijklmno")
}

func TestIsTestLikePath(t *testing.T) {
	assert.True(t, isTestLikePath("src/tests/helper.go"))
	assert.True(t, isTestLikePath("src/foo_test.rs"))
	assert.True(t, isTestLikePath("src/foo.spec.tsx"))
	assert.False(t, isTestLikePath("src/foo.go"))
}
