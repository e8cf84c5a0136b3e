package council

import (
	"context"

	"github.com/biodoia/gocouncil/pkg/config"
)

// Gateway è la capacità di inferenza consumata dal council.
// Deve sopportare chiamate concorrenti; il timeout per-chiamata è
// governato dal context.
type Gateway interface {
	Chat(ctx context.Context, model, systemPrompt, prompt string) (string, error)
}

// Stage1Response è la risposta indipendente di un advisor alla domanda.
// Un advisor fallito mantiene il proprio slot con Error valorizzato:
// il numero di entry è sempre uguale al numero di advisor configurati.
type Stage1Response struct {
	AdvisorID   string `json:"advisor_id"`
	AdvisorName string `json:"advisor_name"`
	Model       string `json:"model"`
	Response    string `json:"response"`
	Error       string `json:"error,omitempty"`
}

// OK riporta se l'advisor ha prodotto una risposta utilizzabile
func (r Stage1Response) OK() bool {
	return r.Error == ""
}

// RankingEntry è il voto di un advisor sulle risposte anonimizzate.
// Un ranking non parsabile mantiene l'entry con Error valorizzato e
// non contribuisce voti all'aggregazione.
type RankingEntry struct {
	AdvisorID     string   `json:"advisor_id"`
	AdvisorName   string   `json:"advisor_name"`
	Model         string   `json:"model"`
	Ranking       string   `json:"ranking"`
	ParsedRanking []string `json:"parsed_ranking,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// OK riporta se l'entry contribuisce voti
func (r RankingEntry) OK() bool {
	return r.Error == ""
}

// AggregatedRank è la posizione consensuale di una risposta anonimizzata.
// Positions contiene la posizione (0-indexed) assegnata da ogni ranker
// che ha contribuito voti, nell'ordine delle RankingEntry valide.
type AggregatedRank struct {
	Label       string `json:"label"`
	AdvisorID   string `json:"advisor_id,omitempty"`
	AdvisorName string `json:"advisor_name,omitempty"`
	Score       int    `json:"score"`
	Positions   []int  `json:"positions,omitempty"`
}

// SynthesisResult è l'artefatto terminale della deliberazione
type SynthesisResult struct {
	Response         string           `json:"response"`
	ChairmanModel    string           `json:"chairman_model"`
	Participants     []string         `json:"participants"`
	AggregateRanking []AggregatedRank `json:"aggregate_ranking"`
}

// Round aggrega tutti gli artefatti di una deliberazione.
// Viene materializzato interamente prima di essere consegnato allo storage;
// dopo il completamento non viene più mutato.
type Round struct {
	Question  string           `json:"question"`
	Stage1    []Stage1Response `json:"stage1"`
	Stage2    []RankingEntry   `json:"stage2"`
	Aggregate []AggregatedRank `json:"aggregate"`
	Stage3    *SynthesisResult `json:"stage3,omitempty"`
}

// labelMap è la mappa privata label->advisor di un round. Viene costruita
// una volta all'ingresso della fase 2 e non raggiunge mai la costruzione
// dei prompt di ranking: la segretezza è strutturale, non convenzionale.
type labelMap struct {
	labels   []string                  // in ordine di presentazione
	advisors map[string]config.Advisor // label -> advisor
	texts    map[string]string         // label -> testo della risposta
}

// advisorFor risolve una label nel suo advisor
func (m *labelMap) advisorFor(label string) (config.Advisor, bool) {
	a, ok := m.advisors[label]
	return a, ok
}
