package council

import (
	"fmt"
	"regexp"
)

// markerRe individua la sezione finale del ranking
var markerRe = regexp.MustCompile(`(?i)FINAL RANKING`)

// labelRe riconosce le label anonime nel testo di un ranking
var labelRe = regexp.MustCompile(`Response\s+([A-Z]+)\b`)

// labelForIndex assegna la label anonima posizionale: "Response A",
// "Response B", ... "Response Z", "Response AA", ...
func labelForIndex(i int) string {
	letters := ""
	for i >= 0 {
		letters = string(rune('A'+i%26)) + letters
		i = i/26 - 1
	}
	return "Response " + letters
}

// parseRanking estrae da un testo di ranking l'ordine totale sulle label.
// Politica difensiva, degradata ma deterministica:
//   - si parte dalla sezione dopo il marker "FINAL RANKING" se presente,
//     altrimenti dall'intero testo;
//   - le label sconosciute vengono scartate;
//   - i duplicati mantengono la prima occorrenza;
//   - le label mancanti vengono accodate nell'ordine di presentazione.
//
// Nessuna label riconosciuta è un fallimento di parsing.
func parseRanking(text string, labels []string) ([]string, error) {
	cleaned := CleanResponse(text)

	section := cleaned
	if locs := markerRe.FindAllStringIndex(cleaned, -1); len(locs) > 0 {
		section = cleaned[locs[len(locs)-1][0]:]
	}

	known := make(map[string]bool, len(labels))
	for _, l := range labels {
		known[l] = true
	}

	var ordered []string
	seen := make(map[string]bool, len(labels))
	for _, m := range labelRe.FindAllString(section, -1) {
		label := normalizeLabel(m)
		if !known[label] || seen[label] {
			continue
		}
		seen[label] = true
		ordered = append(ordered, label)
	}

	if len(ordered) == 0 {
		return nil, fmt.Errorf("no recognizable ranking in response")
	}

	// Label mai menzionate: in coda, ordine di presentazione
	for _, l := range labels {
		if !seen[l] {
			ordered = append(ordered, l)
		}
	}

	return ordered, nil
}

// normalizeLabel riporta una menzione di label alla forma canonica
// "Response X" indipendentemente dalla spaziatura
func normalizeLabel(mention string) string {
	m := labelRe.FindStringSubmatch(mention)
	if m == nil {
		return mention
	}
	return "Response " + m[1]
}
