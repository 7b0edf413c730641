package models

import "time"

type MessageType string

const (
	MessageNormal      MessageType = "normal"
	MessageLegendary   MessageType = "legendary"
	MessageAchievement MessageType = "achievement"
)

type ChatMessage struct {
	ID        string      `json:"id,omitempty"`
	UserID    string      `json:"user_id"`
	UserName  string      `json:"user_name"`
	Message   string      `json:"message"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}
