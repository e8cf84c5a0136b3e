package server

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/biodoia/gocouncil/internal/council"
	"github.com/biodoia/gocouncil/internal/groupchat"
	"github.com/biodoia/gocouncil/internal/personas"
	"github.com/biodoia/gocouncil/internal/storage"
	"github.com/biodoia/gocouncil/pkg/config"
	"github.com/biodoia/gocouncil/pkg/models"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// MessageRequest body per l'invio di un messaggio
type MessageRequest struct {
	Content string `json:"content"`
}

// CouncilConfigRequest body per l'aggiornamento del roster
type CouncilConfigRequest struct {
	Advisors      []config.Advisor `json:"advisors"`
	ChairmanModel string           `json:"chairman_model"`
}

// handleGetCouncilConfig restituisce il roster corrente
func (s *Server) handleGetCouncilConfig(c fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return c.JSON(fiber.Map{
		"advisors":       s.config.Council.Advisors,
		"chairman_model": s.config.Council.ChairmanModel,
		"title_model":    s.config.Council.TitleModel,
	})
}

// handleUpdateCouncilConfig sostituisce il roster e ricostruisce i servizi.
// Il nuovo roster viene persistito per sopravvivere al riavvio; gli advisor
// senza file persona ne ricevono uno minimale.
func (s *Server) handleUpdateCouncilConfig(c fiber.Ctx) error {
	var req CouncilConfigRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if len(req.Advisors) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "at least one advisor is required",
		})
	}

	seen := make(map[string]bool, len(req.Advisors))
	for _, a := range req.Advisors {
		if a.ID == "" || a.Model == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "every advisor must have an id and a model",
			})
		}
		if seen[a.ID] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "duplicate advisor id: " + a.ID,
			})
		}
		seen[a.ID] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.config.Council.Advisors = req.Advisors
	if req.ChairmanModel != "" {
		s.config.Council.ChairmanModel = req.ChairmanModel
	}

	s.council = council.New(s.config.Council, s.ollama, s.requestTimeout)
	s.groupchat = groupchat.New(s.config.Council, s.ollama, s.requestTimeout)

	if err := s.config.SaveRoster(); err != nil {
		log.Warn().Err(err).Msg("Failed to persist council roster")
	}

	for _, a := range req.Advisors {
		if a.PromptFile == "" {
			continue
		}
		if _, err := os.Stat(a.PromptFile); err == nil {
			continue
		}
		if err := personas.Write(a.PromptFile, a.Name, a.Description); err != nil {
			log.Warn().Err(err).Str("advisor", a.ID).Msg("Failed to write persona file")
		}
	}

	return c.JSON(fiber.Map{
		"advisors":       s.config.Council.Advisors,
		"chairman_model": s.config.Council.ChairmanModel,
		"title_model":    s.config.Council.TitleModel,
	})
}

// handleListConversations elenca i metadati delle conversazioni
func (s *Server) handleListConversations(c fiber.Ctx) error {
	conversations, err := s.store.ListConversations(c.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list conversations")
		return fiber.ErrInternalServerError
	}
	return c.JSON(conversations)
}

// handleCreateConversation crea una conversazione vuota
func (s *Server) handleCreateConversation(c fiber.Ctx) error {
	conversation, err := s.store.CreateConversation(c.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to create conversation")
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(conversation)
}

// handleGetConversation restituisce una conversazione completa
func (s *Server) handleGetConversation(c fiber.Ctx) error {
	conversation, err := s.store.GetConversation(c.Context(), c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load conversation")
		return fiber.ErrInternalServerError
	}
	return c.JSON(conversation)
}

// handleDeleteConversation elimina una conversazione
func (s *Server) handleDeleteConversation(c fiber.Ctx) error {
	err := s.store.DeleteConversation(c.Context(), c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete conversation")
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// handleSendMessage esegue una deliberazione completa senza streaming.
// La risposta contiene gli artefatti di tutte le fasi completate.
func (s *Server) handleSendMessage(c fiber.Ctx) error {
	content, conversation, errResp := s.acceptMessage(c)
	if errResp != nil {
		return errResp(c)
	}

	svc, _ := s.councilService()

	// Il titolo corre in parallelo alla pipeline: la sua latenza non si
	// somma a quella della deliberazione
	titleCh := make(chan string, 1)
	go func() {
		titleCh <- s.maybeGenerateTitle(context.WithoutCancel(c.Context()), conversation, content, svc)
	}()

	round, runErr := svc.Run(c.Context(), content, nil)
	if runErr != nil && !errors.Is(runErr, council.ErrSynthesisFailed) {
		log.Error().Err(runErr).Str("conversation", conversation.ID).Msg("Deliberation failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": runErr.Error(),
		})
	}

	// Una sintesi fallita è fatale per il round, ma gli artefatti delle
	// fasi 1-2 vengono comunque persistiti per diagnostica
	if err := s.store.SaveRound(c.Context(), conversation.ID, round); err != nil {
		log.Error().Err(err).Str("conversation", conversation.ID).Msg("Failed to persist round")
		return fiber.ErrInternalServerError
	}

	title := <-titleCh

	if runErr != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "the chairman was unable to synthesize a final answer",
			"round": round,
			"title": title,
		})
	}

	return c.JSON(fiber.Map{
		"round": round,
		"title": title,
	})
}

// handleSendMessageStream esegue una deliberazione pubblicando il progresso
// via Server-Sent Events. La pipeline corre in una goroutine dedicata su un
// context sganciato dalla richiesta: la disconnessione del client degrada
// solo la consegna degli eventi, il round si completa e viene persistito.
func (s *Server) handleSendMessageStream(c fiber.Ctx) error {
	content, conversation, errResp := s.acceptMessage(c)
	if errResp != nil {
		return errResp(c)
	}

	svc, _ := s.councilService()
	emitter := council.NewEmitter(0)

	ctx := context.WithoutCancel(c.Context())

	go func() {
		defer emitter.Close()

		// Il titolo corre in parallelo alla pipeline
		titleCh := make(chan string, 1)
		go func() {
			titleCh <- s.maybeGenerateTitle(ctx, conversation, content, svc)
		}()

		round, runErr := svc.Run(ctx, content, emitter)
		if runErr != nil && !errors.Is(runErr, council.ErrSynthesisFailed) {
			// round privo di artefatti: niente da persistere, l'evento
			// error è già stato emesso dalla pipeline
			return
		}

		if err := s.store.SaveRound(ctx, conversation.ID, round); err != nil {
			log.Error().Err(err).Str("conversation", conversation.ID).Msg("Failed to persist round")
		}

		if runErr != nil {
			return
		}

		if title := <-titleCh; title != "" {
			emitter.Emit(council.Event{
				Type: council.EventTitleComplete,
				Data: map[string]string{"title": title},
			})
		}

		emitter.Emit(council.Event{Type: council.EventComplete})
	}()

	return streamEvents(c, emitter.Events())
}

// acceptMessage valida il body, risolve la conversazione e registra il
// messaggio utente. Restituisce un responder non nil in caso di errore.
func (s *Server) acceptMessage(c fiber.Ctx) (string, *models.Conversation, func(fiber.Ctx) error) {
	var req MessageRequest
	if err := c.Bind().Body(&req); err != nil {
		return "", nil, func(c fiber.Ctx) error {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		return "", nil, func(c fiber.Ctx) error {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "message content must not be empty",
			})
		}
	}

	conversation, err := s.store.GetConversation(c.Context(), c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil, func(c fiber.Ctx) error {
			return fiber.ErrNotFound
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load conversation")
		return "", nil, func(c fiber.Ctx) error {
			return fiber.ErrInternalServerError
		}
	}

	if err := s.store.AddUserMessage(c.Context(), conversation.ID, content); err != nil {
		log.Error().Err(err).Msg("Failed to persist user message")
		return "", nil, func(c fiber.Ctx) error {
			return fiber.ErrInternalServerError
		}
	}

	return content, conversation, nil
}

// maybeGenerateTitle genera e persiste il titolo al primo messaggio di una
// conversazione. Restituisce il titolo generato, o stringa vuota se la
// conversazione ne ha già uno.
func (s *Server) maybeGenerateTitle(ctx context.Context, conversation *models.Conversation, firstMessage string, svc *council.Council) string {
	if len(conversation.Messages) > 0 {
		return ""
	}

	title := svc.GenerateTitle(ctx, firstMessage)
	if err := s.store.UpdateConversationTitle(ctx, conversation.ID, title); err != nil {
		log.Warn().Err(err).Str("conversation", conversation.ID).Msg("Failed to persist conversation title")
	}
	return title
}
