package council

import (
	"regexp"
	"strings"
)

var (
	// thinkRe rimuove i blocchi <think>...</think> emessi dai reasoning model
	thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
	// danglingThinkRe copre un tag di apertura senza chiusura
	danglingThinkRe = regexp.MustCompile(`(?s)<think>.*$`)
	// blankRe comprime sequenze di righe vuote
	blankRe = regexp.MustCompile(`\n{3,}`)
)

// CleanResponse normalizza l'output grezzo di un modello: rimuove i
// blocchi di reasoning e comprime le righe vuote in eccesso.
func CleanResponse(text string) string {
	cleaned := thinkRe.ReplaceAllString(text, "")
	cleaned = danglingThinkRe.ReplaceAllString(cleaned, "")
	cleaned = blankRe.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
