package council

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/biodoia/gocouncil/internal/personas"
	"github.com/biodoia/gocouncil/pkg/config"
	"github.com/rs/zerolog/log"
)

var (
	// ErrAllAdvisorsFailed indica che nessun advisor ha risposto in fase 1:
	// il round è fatale, non esiste materiale da deliberare
	ErrAllAdvisorsFailed = errors.New("all advisors failed to respond")

	// ErrSynthesisFailed indica che la chiamata del chairman è fallita:
	// fatale per il round, ma gli artefatti delle fasi 1-2 restano validi
	ErrSynthesisFailed = errors.New("chairman synthesis failed")
)

// Council orchestra la deliberazione a tre fasi su una domanda.
// Ogni Run lavora su dati propri del round: nessuno stato mutabile
// condiviso attraversa i confini tra round.
type Council struct {
	advisors       []config.Advisor
	chairmanModel  string
	titleModel     string
	gateway        Gateway
	requestTimeout time.Duration
	maxInFlight    int
}

// New crea un Council dal roster configurato
func New(cfg config.CouncilConfig, gateway Gateway, requestTimeout time.Duration) *Council {
	return &Council{
		advisors:       cfg.Advisors,
		chairmanModel:  cfg.ChairmanModel,
		titleModel:     cfg.TitleModel,
		gateway:        gateway,
		requestTimeout: requestTimeout,
		maxInFlight:    cfg.MaxInFlight,
	}
}

// Advisors restituisce il roster del council
func (c *Council) Advisors() []config.Advisor {
	return c.advisors
}

// Request è la coppia (persona, prompt) per una singola chiamata al gateway
type Request struct {
	SystemPrompt string
	Prompt       string
}

// Collect è il Response Collector: invoca il gateway una volta per advisor,
// in parallelo, e restituisce esattamente una Stage1Response per advisor
// nello stesso ordine, qualunque sia l'esito delle singole chiamate.
// È una barriera: ritorna solo quando ogni chiamata si è conclusa.
//
// Le chiamate ricevono un context con timeout sganciato dalla
// cancellazione del chiamante: un client che si disconnette non tronca
// le inferenze in volo, il risultato del round viene semmai scartato
// a valle.
func Collect(ctx context.Context, gw Gateway, advisors []config.Advisor, timeout time.Duration, maxInFlight int, build func(config.Advisor) Request) []Stage1Response {
	if maxInFlight <= 0 || maxInFlight > len(advisors) {
		maxInFlight = len(advisors)
	}

	results := make([]Stage1Response, len(advisors))
	sem := make(chan struct{}, maxInFlight)

	var wg sync.WaitGroup
	for i, advisor := range advisors {
		wg.Add(1)
		go func(i int, advisor config.Advisor) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
			defer cancel()

			req := build(advisor)

			start := time.Now()
			text, err := gw.Chat(callCtx, advisor.Model, req.SystemPrompt, req.Prompt)

			result := Stage1Response{
				AdvisorID:   advisor.ID,
				AdvisorName: advisor.Name,
				Model:       advisor.Model,
			}
			if err != nil {
				log.Warn().
					Err(err).
					Str("advisor", advisor.ID).
					Str("model", advisor.Model).
					Dur("elapsed", time.Since(start)).
					Msg("Advisor call failed")
				result.Error = publicError(err)
			} else {
				result.Response = CleanResponse(text)
			}

			results[i] = result
		}(i, advisor)
	}
	wg.Wait()

	return results
}

// Run esegue la deliberazione completa su una domanda.
//
// Il Round restituito è interamente materializzato. In caso di errore:
//   - ErrAllAdvisorsFailed: il round è privo di artefatti utilizzabili;
//   - ErrSynthesisFailed: il round contiene gli artefatti delle fasi 1-2,
//     che il chiamante deve comunque persistere per diagnostica;
//   - context.Canceled: il chiamante deve scartare il round.
//
// L'emitter può essere nil per i chiamanti non streaming.
func (c *Council) Run(ctx context.Context, question string, emitter *Emitter) (*Round, error) {
	round := &Round{Question: question}

	// Fase 1: raccolta risposte indipendenti
	emitter.emit(Event{Type: EventStage1Start})

	round.Stage1 = Collect(ctx, c.gateway, c.advisors, c.requestTimeout, c.maxInFlight, func(a config.Advisor) Request {
		return Request{
			SystemPrompt: personas.SystemPrompt(a.PromptFile),
			Prompt:       question,
		}
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	survivors := surviving(round.Stage1, c.advisors)
	if len(survivors) == 0 {
		emitter.emit(Event{Type: EventError, Message: "none of the advisors was able to answer"})
		return round, ErrAllAdvisorsFailed
	}

	emitter.emit(Event{Type: EventStage1Complete, Data: round.Stage1})

	// Fase 2: ranking anonimo tra i sopravvissuti
	emitter.emit(Event{Type: EventStage2Start})

	lm := buildLabelMap(round.Stage1, c.advisors)
	round.Stage2 = c.collectRankings(ctx, question, survivors, lm)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	round.Aggregate = deanonymize(AggregateRankings(round.Stage2, lm.labels), lm)

	emitter.emit(Event{
		Type: EventStage2Complete,
		Data: round.Stage2,
		Metadata: map[string]interface{}{
			"aggregate_rankings": round.Aggregate,
		},
	})

	// Fase 3: sintesi del chairman
	emitter.emit(Event{Type: EventStage3Start})

	synthesis, err := c.synthesize(ctx, question, round, lm)
	if err != nil {
		emitter.emit(Event{Type: EventError, Message: "the chairman was unable to synthesize a final answer"})
		return round, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	round.Stage3 = synthesis

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	emitter.emit(Event{Type: EventStage3Complete, Data: round.Stage3})

	return round, nil
}

// collectRankings esegue il fan-out di ranking della fase 2.
// Ogni ranker riceve lo stesso materiale anonimizzato; la mappa
// label->advisor non viene mai passata alla costruzione dei prompt.
func (c *Council) collectRankings(ctx context.Context, question string, rankers []config.Advisor, lm *labelMap) []RankingEntry {
	prompt := buildRankingPrompt(question, lm.labels, lm.texts)

	raw := Collect(ctx, c.gateway, rankers, c.requestTimeout, c.maxInFlight, func(config.Advisor) Request {
		return Request{
			SystemPrompt: rankingSystemPrompt,
			Prompt:       prompt,
		}
	})

	entries := make([]RankingEntry, len(raw))
	for i, r := range raw {
		entry := RankingEntry{
			AdvisorID:   r.AdvisorID,
			AdvisorName: r.AdvisorName,
			Model:       r.Model,
			Ranking:     r.Response,
		}

		if !r.OK() {
			entry.Error = r.Error
		} else if parsed, err := parseRanking(r.Response, lm.labels); err != nil {
			log.Warn().
				Str("advisor", r.AdvisorID).
				Msg("Unparseable ranking, advisor contributes no votes")
			entry.Error = "ranking could not be parsed"
		} else {
			entry.ParsedRanking = parsed
		}

		entries[i] = entry
	}

	return entries
}

// synthesize esegue la singola chiamata del chairman della fase 3
func (c *Council) synthesize(ctx context.Context, question string, round *Round, lm *labelMap) (*SynthesisResult, error) {
	prompt := buildSynthesisPrompt(question, round.Stage1, round.Stage2, round.Aggregate, lm)

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.requestTimeout)
	defer cancel()

	text, err := c.gateway.Chat(callCtx, c.chairmanModel, chairmanSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	participants := make([]string, 0, len(round.Stage1))
	for _, r := range round.Stage1 {
		if r.OK() {
			participants = append(participants, r.AdvisorID)
		}
	}

	return &SynthesisResult{
		Response:         CleanResponse(text),
		ChairmanModel:    c.chairmanModel,
		Participants:     participants,
		AggregateRanking: round.Aggregate,
	}, nil
}

// GenerateTitle produce un titolo breve per una conversazione a partire
// dal primo messaggio. Non è mai fatale: in caso di errore ripiega su
// un troncamento del messaggio stesso.
func (c *Council) GenerateTitle(ctx context.Context, firstMessage string) string {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.requestTimeout)
	defer cancel()

	text, err := c.gateway.Chat(callCtx, c.titleModel, "", buildTitlePrompt(firstMessage))
	if err != nil {
		log.Warn().Err(err).Msg("Title generation failed, falling back to message excerpt")
		return fallbackTitle(firstMessage)
	}

	title := strings.Trim(CleanResponse(text), `"' `)
	if title == "" {
		return fallbackTitle(firstMessage)
	}
	return truncateRunes(title, 80)
}

// fallbackTitle tronca il primo messaggio a misura di titolo
func fallbackTitle(message string) string {
	title := strings.TrimSpace(message)
	if utf8.RuneCountInString(title) > 50 {
		title = strings.TrimSpace(truncateRunes(title, 50)) + "..."
	}
	if title == "" {
		title = "New Conversation"
	}
	return title
}

// truncateRunes taglia sul confine di runa: un titolo non deve mai
// veicolare UTF-8 invalido negli eventi o nello storage
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// surviving restituisce gli advisor la cui risposta di fase 1 è valida,
// nell'ordine di configurazione
func surviving(stage1 []Stage1Response, advisors []config.Advisor) []config.Advisor {
	byID := make(map[string]config.Advisor, len(advisors))
	for _, a := range advisors {
		byID[a.ID] = a
	}

	var out []config.Advisor
	for _, r := range stage1 {
		if r.OK() {
			if a, ok := byID[r.AdvisorID]; ok {
				out = append(out, a)
			}
		}
	}
	return out
}

// buildLabelMap costruisce la mappa privata label->advisor del round.
// Le label sono posizionali sulle sole risposte valide: la biiezione vale
// per costruzione. La mappa viene passata per riferimento al solo passo
// di de-anonimizzazione.
func buildLabelMap(stage1 []Stage1Response, advisors []config.Advisor) *labelMap {
	byID := make(map[string]config.Advisor, len(advisors))
	for _, a := range advisors {
		byID[a.ID] = a
	}

	lm := &labelMap{
		advisors: make(map[string]config.Advisor),
		texts:    make(map[string]string),
	}

	k := 0
	for _, r := range stage1 {
		if !r.OK() {
			continue
		}
		label := labelForIndex(k)
		lm.labels = append(lm.labels, label)
		lm.advisors[label] = byID[r.AdvisorID]
		lm.texts[label] = r.Response
		k++
	}

	return lm
}

// deanonymize annota l'aggregato con gli advisor risolti dalla mappa
// privata del round
func deanonymize(aggregate []AggregatedRank, lm *labelMap) []AggregatedRank {
	for i := range aggregate {
		if a, ok := lm.advisorFor(aggregate[i].Label); ok {
			aggregate[i].AdvisorID = a.ID
			aggregate[i].AdvisorName = a.Name
		}
	}
	return aggregate
}

// publicError riduce un errore di gateway a un messaggio sicuro per il
// record del round: niente dettagli di trasporto verso valle
func publicError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "request timed out"
	}
	return "inference request failed"
}
