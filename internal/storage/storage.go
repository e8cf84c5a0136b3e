package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/biodoia/gocouncil/internal/council"
	"github.com/biodoia/gocouncil/pkg/database"
	"github.com/biodoia/gocouncil/pkg/models"
	"gorm.io/gorm"
)

// ErrNotFound indica che l'entità richiesta non esiste
var ErrNotFound = errors.New("not found")

// Store persiste conversazioni e sessioni di group chat.
// Un round di deliberazione viene consegnato allo store solo interamente
// materializzato: o a pipeline completata, o dopo un fallimento fatale
// ben definito (sintesi fallita, artefatti 1-2 conservati per diagnostica).
type Store struct {
	db *database.DB
}

// New crea uno Store sul database dato
func New(db *database.DB) *Store {
	return &Store{db: db}
}

// ConversationMetadata è la vista di lista di una conversazione
type ConversationMetadata struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// CreateConversation crea una conversazione vuota
func (s *Store) CreateConversation(ctx context.Context) (*models.Conversation, error) {
	conversation := &models.Conversation{Title: "New Conversation"}
	if err := s.db.WithContext(ctx).Create(conversation).Error; err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	conversation.Messages = []models.Message{}
	return conversation, nil
}

// GetConversation carica una conversazione con tutti i suoi messaggi
func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		First(&conversation, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	return &conversation, nil
}

// ListConversations restituisce i soli metadati, più recenti per primi
func (s *Store) ListConversations(ctx context.Context) ([]ConversationMetadata, error) {
	var conversations []models.Conversation
	err := s.db.WithContext(ctx).
		Preload("Messages").
		Order("created_at DESC").
		Find(&conversations).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	out := make([]ConversationMetadata, 0, len(conversations))
	for _, c := range conversations {
		out = append(out, ConversationMetadata{
			ID:           c.ID,
			CreatedAt:    c.CreatedAt,
			Title:        c.Title,
			MessageCount: len(c.Messages),
		})
	}
	return out, nil
}

// DeleteConversation elimina una conversazione e i suoi messaggi
func (s *Store) DeleteConversation(ctx context.Context, id string) error {
	// I messaggi vengono rimossi esplicitamente: il CASCADE del vincolo
	// non è garantito su sqlite senza foreign_keys attivo
	if err := s.db.WithContext(ctx).Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}

	res := s.db.WithContext(ctx).Delete(&models.Conversation{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete conversation: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateConversationTitle aggiorna il titolo di una conversazione
func (s *Store) UpdateConversationTitle(ctx context.Context, id, title string) error {
	res := s.db.WithContext(ctx).
		Model(&models.Conversation{}).
		Where("id = ?", id).
		Update("title", title)
	if res.Error != nil {
		return fmt.Errorf("failed to update title: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddUserMessage accoda un messaggio utente a una conversazione
func (s *Store) AddUserMessage(ctx context.Context, conversationID, content string) error {
	message := &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleUser,
		Content:        content,
	}
	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("failed to add user message: %w", err)
	}
	return nil
}

// SaveRound persiste gli artefatti di un round come messaggio assistant.
// Stage3 può essere assente (sintesi fallita): le fasi 1-2 restano
// comunque recuperabili.
func (s *Store) SaveRound(ctx context.Context, conversationID string, round *council.Round) error {
	stage1, err := json.Marshal(round.Stage1)
	if err != nil {
		return fmt.Errorf("failed to marshal stage1: %w", err)
	}
	stage2, err := json.Marshal(round.Stage2)
	if err != nil {
		return fmt.Errorf("failed to marshal stage2: %w", err)
	}

	message := &models.Message{
		ConversationID: conversationID,
		Role:           models.RoleAssistant,
		Stage1:         stage1,
		Stage2:         stage2,
	}

	if round.Stage3 != nil {
		stage3, err := json.Marshal(round.Stage3)
		if err != nil {
			return fmt.Errorf("failed to marshal stage3: %w", err)
		}
		message.Stage3 = stage3
	}

	if err := s.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("failed to save round: %w", err)
	}
	return nil
}
