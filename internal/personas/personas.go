package personas

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// sectionRe estrae il contenuto della sezione "## System Prompt" di un
// file persona, con o senza fence ```markdown, fino al prossimo header.
var sectionRe = regexp.MustCompile("(?s)## System Prompt\\s*\n+(?:```(?:markdown)?\n)?(.*?)(?:```\\s*)?(?:\n##|$)")

// SystemPrompt legge il file persona e restituisce il system prompt.
// Un file mancante o senza sezione produce un prompt vuoto, non un errore:
// l'advisor risponde comunque, solo senza persona.
func SystemPrompt(promptFile string) string {
	if promptFile == "" {
		return ""
	}

	content, err := os.ReadFile(promptFile)
	if err != nil {
		log.Warn().Err(err).Str("file", promptFile).Msg("Failed to read persona file")
		return ""
	}

	m := sectionRe.FindSubmatch(content)
	if m == nil {
		return ""
	}

	return strings.TrimSpace(string(m[1]))
}

// Write salva un file persona minimale per un advisor che non ne ha uno.
func Write(promptFile, name, description string) error {
	content := fmt.Sprintf("# %s\n\n## System Prompt\n\nYou are %s. %s\n", name, name, description)
	return os.WriteFile(promptFile, []byte(content), 0o644)
}
