package services

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"tree-game-server/models"
	"tree-game-server/store"

	"github.com/jonboulle/clockwork"
)

const (
	MaxChatLength  = 200
	RecentChatSize = 50
	ChatThrottle   = 2 * time.Second
)

// ChatService is the shared chat room. It also posts system announcements for
// legendary draws and unlocked achievements.
type ChatService struct {
	Store    store.Store
	Clock    clockwork.Clock
	Throttle time.Duration
}

func NewChatService(s store.Store, clock clockwork.Clock) *ChatService {
	return &ChatService{Store: s, Clock: clock, Throttle: ChatThrottle}
}

func (c *ChatService) post(ctx context.Context, msg models.ChatMessage) (*models.ChatMessage, error) {
	msg.Timestamp = c.Clock.Now()
	id, err := c.Store.Add(ctx, store.ChatMessages, msg)
	if err != nil {
		return nil, fmt.Errorf("post chat message: %w", err)
	}
	msg.ID = id
	return &msg, nil
}

// Send posts a player message. Messages are trimmed and must be 1..MaxChatLength runes.
func (c *ChatService) Send(ctx context.Context, userID, userName, message string) (*models.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" || utf8.RuneCountInString(message) > MaxChatLength {
		return nil, invalid("chat", ErrInvalidMessage)
	}
	return c.post(ctx, models.ChatMessage{
		UserID:   userID,
		UserName: userName,
		Message:  message,
		Type:     models.MessageNormal,
	})
}

func (c *ChatService) AnnounceLegendary(ctx context.Context, userID, userName, weaponName string) error {
	_, err := c.post(ctx, models.ChatMessage{
		UserID:   userID,
		UserName: userName,
		Message:  fmt.Sprintf("🎉 %s drew the legendary weapon %s!", userName, weaponName),
		Type:     models.MessageLegendary,
	})
	if err == nil {
		log.Printf("🎉 [Chat] legendary announcement for %s (%s)", userName, weaponName)
	}
	return err
}

func (c *ChatService) AnnounceAchievement(ctx context.Context, userID, userName, achievementID string) error {
	_, err := c.post(ctx, models.ChatMessage{
		UserID:   userID,
		UserName: userName,
		Message:  fmt.Sprintf("🏆 %s unlocked the achievement %s!", userName, achievementID),
		Type:     models.MessageAchievement,
	})
	return err
}

func recentChatQuery(limit int) store.Query {
	if limit <= 0 || limit > RecentChatSize {
		limit = RecentChatSize
	}
	return store.Query{Collection: store.ChatMessages, Desc: true, Limit: limit}
}

// decodeChat returns messages oldest first.
func decodeChat(snaps []store.Snapshot) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(snaps))
	for _, snap := range snaps {
		var msg models.ChatMessage
		if err := snap.DataTo(&msg); err != nil {
			continue
		}
		msg.ID = snap.Key
		out = append(out, msg)
	}
	slices.Reverse(out)
	return out
}

// Recent returns up to limit of the newest messages, oldest first.
func (c *ChatService) Recent(ctx context.Context, limit int) ([]models.ChatMessage, error) {
	snaps, err := c.Store.Query(ctx, recentChatQuery(limit))
	if err != nil {
		return nil, err
	}
	return decodeChat(snaps), nil
}

// Subscribe delivers the recent messages on every change, at most once per Throttle.
func (c *ChatService) Subscribe(limit int, fn func([]models.ChatMessage)) store.Unsubscribe {
	th := NewThrottle(c.Clock, c.Throttle, fn)
	unsub := c.Store.SubscribeQuery(recentChatQuery(limit), func(snaps []store.Snapshot) {
		th.Push(decodeChat(snaps))
	})
	return func() {
		unsub()
		th.Stop()
	}
}
