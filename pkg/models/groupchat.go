package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GroupChatSession rappresenta una sessione di group chat con un
// sottoinsieme dei membri del council. Solo fase 1: nessun ranking,
// nessuna sintesi.
type GroupChatSession struct {
	ID        string         `json:"id" gorm:"primaryKey"`
	Title     string         `json:"title" gorm:"not null;default:'New Group Chat'"`
	MemberIDs datatypes.JSON `json:"member_ids"`
	CreatedAt time.Time      `json:"created_at"`

	// Relations
	Messages []GroupChatMessage `json:"messages" gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// BeforeCreate hook per generare l'ID
func (s *GroupChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// GroupChatMessage rappresenta un turno in una group chat.
// I messaggi assistant portano le risposte di tutti i membri selezionati.
type GroupChatMessage struct {
	ID        uint        `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID string      `json:"session_id" gorm:"index;not null"`
	Role      MessageRole `json:"role" gorm:"not null"`
	Content   string      `json:"content,omitempty" gorm:"type:text"`

	// Risposte dei membri (solo messaggi assistant)
	Responses datatypes.JSON `json:"responses,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
