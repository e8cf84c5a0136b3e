package server

import (
	"context"
	"errors"
	"strings"

	"github.com/biodoia/gocouncil/internal/council"
	"github.com/biodoia/gocouncil/internal/storage"
	"github.com/biodoia/gocouncil/pkg/models"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// Eventi dello stream di una chat di gruppo. Una chat di gruppo ha una
// sola fase, quindi non passa dalla macchina a stati del council.
const (
	eventResponsesStart    council.EventType = "responses_start"
	eventResponsesComplete council.EventType = "responses_complete"
)

// CreateGroupChatRequest body per la creazione di una sessione
type CreateGroupChatRequest struct {
	MemberIDs []string `json:"member_ids"`
}

// handleListGroupChats elenca i metadati delle sessioni
func (s *Server) handleListGroupChats(c fiber.Ctx) error {
	sessions, err := s.store.ListGroupChatSessions(c.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list group chat sessions")
		return fiber.ErrInternalServerError
	}
	return c.JSON(sessions)
}

// handleCreateGroupChat crea una sessione con i membri indicati
func (s *Server) handleCreateGroupChat(c fiber.Ctx) error {
	var req CreateGroupChatRequest
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if len(req.MemberIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "at least one member is required",
		})
	}

	// I membri devono esistere nel roster corrente
	s.mu.RLock()
	known := make(map[string]bool, len(s.config.Council.Advisors))
	for _, a := range s.config.Council.Advisors {
		known[a.ID] = true
	}
	s.mu.RUnlock()

	for _, id := range req.MemberIDs {
		if !known[id] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "unknown advisor id: " + id,
			})
		}
	}

	session, err := s.store.CreateGroupChatSession(c.Context(), req.MemberIDs)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create group chat session")
		return fiber.ErrInternalServerError
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// handleGetGroupChat restituisce una sessione completa
func (s *Server) handleGetGroupChat(c fiber.Ctx) error {
	session, err := s.store.GetGroupChatSession(c.Context(), c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load group chat session")
		return fiber.ErrInternalServerError
	}
	return c.JSON(session)
}

// handleDeleteGroupChat elimina una sessione
func (s *Server) handleDeleteGroupChat(c fiber.Ctx) error {
	err := s.store.DeleteGroupChatSession(c.Context(), c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return fiber.ErrNotFound
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to delete group chat session")
		return fiber.ErrInternalServerError
	}
	return c.JSON(fiber.Map{"status": "deleted"})
}

// handleGroupChatMessage raccoglie le risposte dei membri senza streaming
func (s *Server) handleGroupChatMessage(c fiber.Ctx) error {
	content, session, errResp := s.acceptGroupChatMessage(c)
	if errResp != nil {
		return errResp(c)
	}

	_, svc := s.councilService()

	responses, err := svc.Run(c.Context(), content, storage.MemberIDs(session), storage.HistoryTurns(session))
	if err != nil {
		log.Error().Err(err).Str("session", session.ID).Msg("Group chat round failed")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := s.store.SaveGroupChatResponses(c.Context(), session.ID, responses); err != nil {
		log.Error().Err(err).Str("session", session.ID).Msg("Failed to persist group chat responses")
		return fiber.ErrInternalServerError
	}

	title := s.maybeGenerateGroupChatTitle(c.Context(), session, content)

	return c.JSON(fiber.Map{
		"responses": responses,
		"title":     title,
	})
}

// handleGroupChatMessageStream raccoglie le risposte dei membri pubblicando
// il progresso via Server-Sent Events. Come per le deliberazioni, il round
// corre su un context sganciato dalla richiesta e sopravvive alla
// disconnessione del client.
func (s *Server) handleGroupChatMessageStream(c fiber.Ctx) error {
	content, session, errResp := s.acceptGroupChatMessage(c)
	if errResp != nil {
		return errResp(c)
	}

	_, svc := s.councilService()

	ch := make(chan council.Event, 8)
	ctx := context.WithoutCancel(c.Context())

	go func() {
		defer close(ch)

		ch <- council.Event{Type: eventResponsesStart}

		responses, err := svc.Run(ctx, content, storage.MemberIDs(session), storage.HistoryTurns(session))
		if err != nil {
			ch <- council.Event{Type: council.EventError, Message: err.Error()}
			return
		}

		if err := s.store.SaveGroupChatResponses(ctx, session.ID, responses); err != nil {
			log.Error().Err(err).Str("session", session.ID).Msg("Failed to persist group chat responses")
		}

		ch <- council.Event{Type: eventResponsesComplete, Data: responses}

		if title := s.maybeGenerateGroupChatTitle(ctx, session, content); title != "" {
			ch <- council.Event{
				Type: council.EventTitleComplete,
				Data: map[string]string{"title": title},
			}
		}

		ch <- council.Event{Type: council.EventComplete}
	}()

	return streamEvents(c, ch)
}

// acceptGroupChatMessage valida il body, risolve la sessione e registra il
// messaggio utente. Restituisce un responder non nil in caso di errore.
func (s *Server) acceptGroupChatMessage(c fiber.Ctx) (string, *models.GroupChatSession, func(fiber.Ctx) error) {
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

	session, err := s.store.GetGroupChatSession(c.Context(), c.Params("id"))
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil, func(c fiber.Ctx) error {
			return fiber.ErrNotFound
		}
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to load group chat session")
		return "", nil, func(c fiber.Ctx) error {
			return fiber.ErrInternalServerError
		}
	}

	if err := s.store.AddGroupChatUserMessage(c.Context(), session.ID, content); err != nil {
		log.Error().Err(err).Msg("Failed to persist user message")
		return "", nil, func(c fiber.Ctx) error {
			return fiber.ErrInternalServerError
		}
	}

	return content, session, nil
}

// maybeGenerateGroupChatTitle genera e persiste il titolo al primo
// messaggio di una sessione
func (s *Server) maybeGenerateGroupChatTitle(ctx context.Context, session *models.GroupChatSession, firstMessage string) string {
	if len(session.Messages) > 0 {
		return ""
	}

	svc, _ := s.councilService()
	title := svc.GenerateTitle(ctx, firstMessage)
	if err := s.store.UpdateGroupChatTitle(ctx, session.ID, title); err != nil {
		log.Warn().Err(err).Str("session", session.ID).Msg("Failed to persist group chat title")
	}
	return title
}
