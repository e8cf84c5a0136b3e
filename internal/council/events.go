package council

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType rappresenta il tipo di evento di progresso
type EventType string

const (
	EventStage1Start    EventType = "stage1_start"
	EventStage1Complete EventType = "stage1_complete"
	EventStage2Start    EventType = "stage2_start"
	EventStage2Complete EventType = "stage2_complete"
	EventStage3Start    EventType = "stage3_start"
	EventStage3Complete EventType = "stage3_complete"
	EventTitleComplete  EventType = "title_complete"
	EventComplete       EventType = "complete"
	EventError          EventType = "error"
)

// Event è un'unità autocontenuta dello stream di progresso: un consumer
// che vede solo un prefisso dello stream può interpretare ogni evento
// ricevuto fino a quel punto.
type Event struct {
	Type     EventType   `json:"type"`
	Data     interface{} `json:"data,omitempty"`
	Metadata interface{} `json:"metadata,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// roundState è lo stato della macchina a stati di un round
type roundState int

const (
	stateIdle roundState = iota
	stateStage1Running
	stateStage1Done
	stateStage2Running
	stateStage2Done
	stateStage3Running
	stateStage3Done
	stateComplete
	stateError
)

// transitions mappa ogni evento di fase allo stato da cui è ammesso
// e allo stato risultante
var transitions = map[EventType]struct {
	from roundState
	to   roundState
}{
	EventStage1Start:    {stateIdle, stateStage1Running},
	EventStage1Complete: {stateStage1Running, stateStage1Done},
	EventStage2Start:    {stateStage1Done, stateStage2Running},
	EventStage2Complete: {stateStage2Running, stateStage2Done},
	EventStage3Start:    {stateStage2Done, stateStage3Running},
	EventStage3Complete: {stateStage3Running, stateStage3Done},
	EventComplete:       {stateStage3Done, stateComplete},
}

// Emitter consegna gli eventi di un round in ordine di macchina a stati.
// L'emissione è fire-and-forget: la pipeline non dipende da chi ascolta,
// e un consumer lento o disconnesso non blocca mai il round.
type Emitter struct {
	mu     sync.Mutex
	state  roundState
	ch     chan Event
	closed bool
}

// NewEmitter crea un emitter per un singolo round.
// Il buffer copre l'intero stream di un round: con un consumer assente
// gli eventi restano in coda senza bloccare la pipeline.
func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = 16
	}
	return &Emitter{ch: make(chan Event, buffer)}
}

// Events restituisce il canale consumato dal transport layer.
// Viene chiuso da Close a round terminato.
func (e *Emitter) Events() <-chan Event {
	return e.ch
}

// Emit pubblica un evento, validando la transizione di stato.
// Una transizione fuori ordine è un difetto del chiamante e viene
// rifiutata con errore senza consegnare l'evento.
// Un emitter nil scarta tutto: i chiamanti non streaming non ne creano uno.
func (e *Emitter) Emit(ev Event) error {
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("emitter already closed")
	}
	if e.state == stateComplete || e.state == stateError {
		return fmt.Errorf("round already terminal, cannot emit %s", ev.Type)
	}

	switch ev.Type {
	case EventError:
		// error è raggiungibile da ogni stato non terminale
		e.state = stateError
	case EventTitleComplete:
		// la generazione del titolo corre in parallelo alla pipeline e
		// non partecipa alla macchina a stati delle fasi
	default:
		t, ok := transitions[ev.Type]
		if !ok {
			return fmt.Errorf("unknown event type: %s", ev.Type)
		}
		if e.state != t.from {
			return fmt.Errorf("event %s not allowed in current state", ev.Type)
		}
		e.state = t.to
	}

	select {
	case e.ch <- ev:
	default:
		// Buffer pieno: consumer assente o in stallo. La visibilità
		// degrada, il round no.
		log.Warn().Str("event", string(ev.Type)).Msg("Progress event dropped, consumer not draining")
	}

	return nil
}

// Close chiude lo stream. Idempotente.
func (e *Emitter) Close() {
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// emit è il wrapper interno della pipeline: una transizione rifiutata è
// un difetto di programmazione, si logga e si prosegue
func (e *Emitter) emit(ev Event) {
	if err := e.Emit(ev); err != nil {
		log.Error().Err(err).Str("event", string(ev.Type)).Msg("Progress event rejected")
	}
}
