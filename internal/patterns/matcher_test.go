package patterns

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/obby/fs-coalescer/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_IsIgnored(t *testing.T) {
	m := NewMatcher()
	require.NoError(t, m.SetIgnorePatterns([]string{
		"*.swp",
		"# comment",
		"",
		".git/**",
		"build/",
		"assets/**/*.tmp",
	}))

	tests := []struct {
		path string
		want bool
	}{
		{"/home/dev/game/main.go.swp", true},
		{"/home/dev/game/main.go", false},
		{"/home/dev/game/.git/objects/ab/cd", true},
		{"/home/dev/game/build/out.bin", true},
		{"/home/dev/game/buildings/house.obj", false},
		{"/home/dev/game/assets/tex/grass.tmp", true},
		{"/home/dev/game/assets/grass.tmp", true},
		{"/home/dev/game/other/grass.tmp", false},
		{`C:\game\main.go.swp`, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, m.IsIgnored(tt.path))
		})
	}
}

func TestMatcher_IsIgnoredDir(t *testing.T) {
	m := NewMatcher()
	require.NoError(t, m.SetIgnorePatterns([]string{".git/**", "node_modules/"}))

	assert.True(t, m.IsIgnoredDir("/repo/.git"))
	assert.True(t, m.IsIgnoredDir("/repo/web/node_modules/"))
	assert.False(t, m.IsIgnoredDir("/repo/src"))
	assert.False(t, m.IsIgnored("/repo/.git"), "plain path check does not cover the directory itself")
}

func TestMatcher_IsWatched(t *testing.T) {
	m := NewMatcher()
	assert.False(t, m.IsWatched("/any/file"), "no watch patterns watches nothing")

	require.NoError(t, m.SetWatchPatterns([]string{"*.png", "shaders/**"}))
	assert.True(t, m.IsWatched("/game/assets/grass.png"))
	assert.True(t, m.IsWatched("/game/shaders/lit/pbr.glsl"))
	assert.False(t, m.IsWatched("/game/scripts/main.lua"))

	require.NoError(t, m.AddWatchPatterns([]string{"scripts/*.lua"}))
	assert.True(t, m.IsWatched("/game/scripts/main.lua"))
}

func TestMatcher_Allows(t *testing.T) {
	m := NewMatcher()
	require.NoError(t, m.SetWatchPatterns([]string{"**"}))
	require.NoError(t, m.SetIgnorePatterns([]string{"*~"}))

	assert.True(t, m.Allows("/p/readme.md"))
	assert.False(t, m.Allows("/p/readme.md~"))

	require.NoError(t, m.AddIgnorePatterns([]string{"*.md"}))
	assert.False(t, m.Allows("/p/readme.md"))
}

func TestMatcher_InvalidPattern(t *testing.T) {
	m := NewMatcher()
	require.NoError(t, m.SetWatchPatterns([]string{"*.go"}))

	err := m.SetWatchPatterns([]string{"[unclosed"})
	assert.Error(t, err)
	assert.True(t, m.IsWatched("main.go"), "failed update keeps previous patterns")
}

func TestReadPatternFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".obbyignore")
	require.NoError(t, os.WriteFile(path, []byte("# editor files\n*.swp\n\n  build/  \n"), 0o644))

	patterns, err := ReadPatternFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"*.swp", "build/"}, patterns)

	patterns, err = ReadPatternFile(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestUnder(t *testing.T) {
	q := queue.New()
	q.Add(queue.NewChanged("/game/levels/one.map"))
	q.Add(queue.NewCreated("/game/levels/sub/two.map"))
	q.Add(queue.NewChanged("/game/levelsets.json"))
	q.Add(queue.NewDeleted("/game/levels"))

	q.Filter(Under("/game/levels/"))

	assert.Equal(t, []queue.Event{
		queue.NewChanged("/game/levelsets.json"),
		queue.NewDeleted("/game/levels"),
	}, q.Items())
}

func TestMatcher_Rejected(t *testing.T) {
	m := NewMatcher()
	require.NoError(t, m.SetWatchPatterns([]string{"**"}))

	q := queue.New()
	q.Add(queue.NewChanged("/p/a.png"))
	q.Add(queue.NewChanged("/p/a.psd"))

	require.NoError(t, m.SetIgnorePatterns([]string{"*.psd"}))
	q.Filter(m.Rejected())

	assert.Equal(t, []queue.Event{queue.NewChanged("/p/a.png")}, q.Items())
}
