package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MessageRole distingue i messaggi utente da quelli del council
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Conversation rappresenta una conversazione con il council
type Conversation struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Title     string    `json:"title" gorm:"not null;default:'New Conversation'"`
	CreatedAt time.Time `json:"created_at"`

	// Relations
	Messages []Message `json:"messages" gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate hook per generare l'ID
func (c *Conversation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// Message rappresenta un turno in una conversazione.
// I messaggi assistant portano gli artefatti completi delle tre fasi,
// serializzati come JSON; i messaggi user solo il contenuto testuale.
type Message struct {
	ID             uint        `json:"id" gorm:"primaryKey;autoIncrement"`
	ConversationID string      `json:"conversation_id" gorm:"index;not null"`
	Role           MessageRole `json:"role" gorm:"not null"`
	Content        string      `json:"content,omitempty" gorm:"type:text"`

	// Artefatti della deliberazione (solo messaggi assistant)
	Stage1 datatypes.JSON `json:"stage1,omitempty"`
	Stage2 datatypes.JSON `json:"stage2,omitempty"`
	Stage3 datatypes.JSON `json:"stage3,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
