package personas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePersona(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "persona.md")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSystemPrompt(t *testing.T) {
	t.Run("extracts the system prompt section", func(t *testing.T) {
		path := writePersona(t, `# Ada Lovelace

## Biography

A mathematician.

## System Prompt

You are Ada Lovelace, the first programmer.

## Notes

Internal notes.
`)
		got := SystemPrompt(path)
		assert.Equal(t, "You are Ada Lovelace, the first programmer.", got)
	})

	t.Run("handles fenced prompt blocks", func(t *testing.T) {
		path := writePersona(t, "## System Prompt\n\n```markdown\nYou are a helpful advisor.\n```\n")
		got := SystemPrompt(path)
		assert.Equal(t, "You are a helpful advisor.", got)
	})

	t.Run("section at end of file", func(t *testing.T) {
		path := writePersona(t, "# Persona\n\n## System Prompt\n\nFinal section content.")
		got := SystemPrompt(path)
		assert.Equal(t, "Final section content.", got)
	})

	t.Run("missing file yields empty prompt", func(t *testing.T) {
		assert.Empty(t, SystemPrompt("/nonexistent/persona.md"))
	})

	t.Run("missing section yields empty prompt", func(t *testing.T) {
		path := writePersona(t, "# Persona\n\nNo prompt section here.\n")
		assert.Empty(t, SystemPrompt(path))
	})

	t.Run("empty path yields empty prompt", func(t *testing.T) {
		assert.Empty(t, SystemPrompt(""))
	})
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new_advisor.md")
	require.NoError(t, Write(path, "Grace Hopper", "Pioneer of compilers."))

	got := SystemPrompt(path)
	assert.Contains(t, got, "You are Grace Hopper.")
	assert.Contains(t, got, "Pioneer of compilers.")
}
