package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/biodoia/gocouncil/internal/groupchat"
	"github.com/biodoia/gocouncil/pkg/models"
	"gorm.io/gorm"
)

// GroupChatMetadata è la vista di lista di una sessione di group chat
type GroupChatMetadata struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MemberIDs    []string  `json:"member_ids"`
	MessageCount int       `json:"message_count"`
}

// CreateGroupChatSession crea una sessione con i membri selezionati
func (s *Store) CreateGroupChatSession(ctx context.Context, memberIDs []string) (*models.GroupChatSession, error) {
	members, err := json.Marshal(memberIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal member ids: %w", err)
	}

	session := &models.GroupChatSession{
		Title:     "New Group Chat",
		MemberIDs: members,
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, fmt.Errorf("failed to create group chat session: %w", err)
	}
	session.Messages = []models.GroupChatMessage{}
	return session, nil
}

// GetGroupChatSession carica una sessione con tutti i suoi messaggi
func (s *Store) GetGroupChatSession(ctx context.Context, id string) (*models.GroupChatSession, error) {
	var session models.GroupChatSession
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&session, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load group chat session: %w", err)
	}
	return &session, nil
}

// ListGroupChatSessions restituisce i soli metadati, più recenti per primi
func (s *Store) ListGroupChatSessions(ctx context.Context) ([]GroupChatMetadata, error) {
	var sessions []models.GroupChatSession
	err := s.db.WithContext(ctx).
		Preload("Messages").
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list group chat sessions: %w", err)
	}

	out := make([]GroupChatMetadata, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, GroupChatMetadata{
			ID:           session.ID,
			CreatedAt:    session.CreatedAt,
			Title:        session.Title,
			MemberIDs:    decodeMemberIDs(session.MemberIDs),
			MessageCount: len(session.Messages),
		})
	}
	return out, nil
}

// DeleteGroupChatSession elimina una sessione e i suoi messaggi
func (s *Store) DeleteGroupChatSession(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("session_id = ?", id).Delete(&models.GroupChatMessage{}).Error; err != nil {
		return fmt.Errorf("failed to delete group chat messages: %w", err)
	}

	res := s.db.WithContext(ctx).Delete(&models.GroupChatSession{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete group chat session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateGroupChatTitle aggiorna il titolo di una sessione
func (s *Store) UpdateGroupChatTitle(ctx context.Context, id, title string) error {
	res := s.db.WithContext(ctx).
		Model(&models.GroupChatSession{}).
		Where("id = ?", id).
		Update("title", title)
	if res.Error != nil {
		return fmt.Errorf("failed to update group chat title: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddGroupChatUserMessage accoda un messaggio utente a una sessione
func (s *Store) AddGroupChatUserMessage(ctx context.Context, sessionID, content string) error {
	message := &models.GroupChatMessage{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   content,
	}
	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("failed to add group chat user message: %w", err)
	}
	return nil
}

// SaveGroupChatResponses persiste le risposte dei membri come messaggio
// assistant della sessione
func (s *Store) SaveGroupChatResponses(ctx context.Context, sessionID string, responses []groupchat.MemberResponse) error {
	payload, err := json.Marshal(responses)
	if err != nil {
		return fmt.Errorf("failed to marshal responses: %w", err)
	}

	message := &models.GroupChatMessage{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Responses: payload,
	}
	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("failed to save group chat responses: %w", err)
	}
	return nil
}

// MemberIDs decodifica la lista dei membri di una sessione
func MemberIDs(session *models.GroupChatSession) []string {
	return decodeMemberIDs(session.MemberIDs)
}

// HistoryTurns converte i messaggi persistiti di una sessione nei turni
// di contesto consumati dal servizio di group chat
func HistoryTurns(session *models.GroupChatSession) []groupchat.Turn {
	turns := make([]groupchat.Turn, 0, len(session.Messages))
	for _, msg := range session.Messages {
		turn := groupchat.Turn{Role: string(msg.Role), Content: msg.Content}
		if len(msg.Responses) > 0 {
			// Risposte non decodificabili degradano a turno vuoto
			_ = json.Unmarshal(msg.Responses, &turn.Responses)
		}
		turns = append(turns, turn)
	}
	return turns
}

func decodeMemberIDs(raw []byte) []string {
	var ids []string
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &ids)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids
}
