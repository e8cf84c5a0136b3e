package groupchat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/biodoia/gocouncil/internal/council"
	"github.com/biodoia/gocouncil/internal/personas"
	"github.com/biodoia/gocouncil/pkg/config"
)

// maxHistoryMessages è il numero massimo di turni passati inclusi nel
// contesto dei membri
const maxHistoryMessages = 10

// MemberResponse è la risposta di un singolo membro in un turno di group chat
type MemberResponse struct {
	AdvisorID   string `json:"advisor_id"`
	AdvisorName string `json:"advisor_name"`
	Model       string `json:"model"`
	Response    string `json:"response"`
	Error       string `json:"error,omitempty"`
}

// Turn è un turno passato della conversazione, usato come contesto
type Turn struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	Responses []MemberResponse `json:"responses,omitempty"`
}

// Service esegue la variante group chat: solo fase 1, ogni membro
// selezionato risponde indipendentemente e le risposte vengono mostrate
// fianco a fianco. Nessun ranking, nessuna sintesi.
type Service struct {
	advisors       []config.Advisor
	gateway        council.Gateway
	requestTimeout time.Duration
	maxInFlight    int
}

// New crea il servizio di group chat sullo stesso roster del council
func New(cfg config.CouncilConfig, gateway council.Gateway, requestTimeout time.Duration) *Service {
	return &Service{
		advisors:       cfg.Advisors,
		gateway:        gateway,
		requestTimeout: requestTimeout,
		maxInFlight:    cfg.MaxInFlight,
	}
}

// Run raccoglie le risposte dei membri selezionati alla domanda, con il
// contesto degli ultimi turni. Condivide il Response Collector del
// council: fan-out concorrente, join completo, fallimenti per-membro
// marcati e mai scartati.
func (s *Service) Run(ctx context.Context, question string, memberIDs []string, history []Turn) ([]MemberResponse, error) {
	members := s.selectMembers(memberIDs)
	if len(members) == 0 {
		return nil, fmt.Errorf("no configured advisor matches the selected members")
	}

	contextBlock := buildHistoryContext(history)
	prompt := buildPrompt(question, contextBlock)

	collected := council.Collect(ctx, s.gateway, members, s.requestTimeout, s.maxInFlight, func(a config.Advisor) council.Request {
		return council.Request{
			SystemPrompt: personas.SystemPrompt(a.PromptFile),
			Prompt:       prompt,
		}
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	responses := make([]MemberResponse, len(collected))
	for i, r := range collected {
		responses[i] = MemberResponse{
			AdvisorID:   r.AdvisorID,
			AdvisorName: r.AdvisorName,
			Model:       r.Model,
			Response:    r.Response,
			Error:       r.Error,
		}
	}

	return responses, nil
}

// selectMembers filtra il roster sui membri selezionati, preservando
// l'ordine di configurazione
func (s *Service) selectMembers(memberIDs []string) []config.Advisor {
	selected := make(map[string]bool, len(memberIDs))
	for _, id := range memberIDs {
		selected[id] = true
	}

	var members []config.Advisor
	for _, a := range s.advisors {
		if selected[a.ID] {
			members = append(members, a)
		}
	}
	return members
}

// buildHistoryContext rende testuale la coda recente della conversazione
func buildHistoryContext(history []Turn) string {
	if len(history) == 0 {
		return ""
	}

	recent := history
	if len(recent) > maxHistoryMessages {
		recent = recent[len(recent)-maxHistoryMessages:]
	}

	var b strings.Builder
	b.WriteString("Previous conversation:")

	for _, turn := range recent {
		switch {
		case turn.Role == "user":
			fmt.Fprintf(&b, "\n\nUser: %s", turn.Content)
		case len(turn.Responses) > 0:
			for _, resp := range turn.Responses {
				if resp.Error != "" {
					continue
				}
				fmt.Fprintf(&b, "\n\n%s: %s", resp.AdvisorName, resp.Response)
			}
		}
	}

	return b.String()
}

// buildPrompt antepone il contesto alla domanda corrente
func buildPrompt(question, contextBlock string) string {
	if contextBlock == "" {
		return question
	}
	return fmt.Sprintf(
		"%s\n\nUser: %s\n\nPlease respond to the user's latest question, taking into account the conversation history.",
		contextBlock, question,
	)
}
