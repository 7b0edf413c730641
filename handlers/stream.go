package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"tree-game-server/middleware"
	"tree-game-server/models"
	"tree-game-server/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const keepAliveEvery = 15 * time.Second

// offerLatest puts v into a one-slot channel, replacing whatever was waiting there.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// StreamWorld streams the tree and the recent attack log as server-sent events.
func StreamWorld(world *services.WorldService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no") // nginx

		states := make(chan models.WorldState, 1)
		attacks := make(chan []models.AttackRecord, 1)
		unsubWorld := world.Subscribe(func(s models.WorldState) { offerLatest(states, s) })
		unsubAttacks := func() {}
		if world.Attacks != nil {
			unsubAttacks = world.Attacks.Subscribe(services.RecentAttackSize, func(r []models.AttackRecord) { offerLatest(attacks, r) })
		}
		done := c.Context().Done()

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			defer unsubWorld()
			defer unsubAttacks()

			ticker := time.NewTicker(keepAliveEvery)
			defer ticker.Stop()

			w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return
			}

			for {
				var (
					event   string
					payload any
				)
				select {
				case s := <-states:
					event, payload = "world", s
				case r := <-attacks:
					event, payload = "attacks", r
				case <-ticker.C:
					w.WriteString(":\n\n")
					if err := w.Flush(); err != nil {
						return
					}
					continue
				case <-done:
					return
				}

				data, err := json.Marshal(payload)
				if err != nil {
					log.Printf("SSE encode error for user %s: %v", userID, err)
					continue
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
				if err := w.Flush(); err != nil {
					// client disconnected
					return
				}
			}
		})

		return nil
	}
}

// FeedSources is what the WebSocket feed pushes to clients.
type FeedSources struct {
	World  *services.WorldService
	Chat   *services.ChatService
	Roster *services.RosterService
}

type feedEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type feedCommand struct {
	Type       string `json:"type"` // "chat" or "heartbeat"
	Message    string `json:"message,omitempty"`
	WeaponName string `json:"weapon_name,omitempty"`
}

// SetupFeedRoutes registers /ws/feed: world, attack, chat and roster updates pushed as
// {"type","data"} frames, with chat and heartbeat commands accepted from the client.
func SetupFeedRoutes(app *fiber.App, parser middleware.TokenParser, src FeedSources) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/feed", middleware.StreamAuthMiddleware(parser), websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals(string(middleware.UserIDKey)).(string)
		userName, _ := conn.Locals(string(middleware.UserNameKey)).(string)
		serveFeed(conn, userID, userName, src)
	}))
}

// feedConn is the part of *websocket.Conn the feed writer uses.
type feedConn interface {
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// feedQueue keeps the newest undelivered update per feed type. A slow client skips
// intermediate states but always receives the latest one.
type feedQueue struct {
	mu     sync.Mutex
	latest map[string]any
	order  []string
	ready  chan struct{}
}

func newFeedQueue() *feedQueue {
	return &feedQueue{latest: map[string]any{}, ready: make(chan struct{}, 1)}
}

func (q *feedQueue) push(typ string, data any) {
	q.mu.Lock()
	if _, waiting := q.latest[typ]; !waiting {
		q.order = append(q.order, typ)
	}
	q.latest[typ] = data
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// take empties the queue, oldest pending type first.
func (q *feedQueue) take() []feedEnvelope {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]feedEnvelope, 0, len(q.order))
	for _, typ := range q.order {
		out = append(out, feedEnvelope{Type: typ, Data: q.latest[typ]})
	}
	q.order = q.order[:0]
	clear(q.latest)
	return out
}

// writeFeed sends queued updates and keepalive pings until done is closed or a write fails.
func writeFeed(conn feedConn, q *feedQueue, done <-chan struct{}) {
	ticker := time.NewTicker(keepAliveEvery)
	defer ticker.Stop()
	for {
		select {
		case <-q.ready:
			for _, env := range q.take() {
				if err := conn.WriteJSON(env); err != nil {
					conn.Close()
					return
				}
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}

func serveFeed(conn *websocket.Conn, userID, userName string, src FeedSources) {
	q := newFeedQueue()
	done := make(chan struct{})
	writerDone := make(chan struct{})

	var unsubs []func()
	if src.World != nil {
		unsubs = append(unsubs, src.World.Subscribe(func(s models.WorldState) { q.push("world", s) }))
		if src.World.Attacks != nil {
			unsubs = append(unsubs, src.World.Attacks.Subscribe(services.RecentAttackSize, func(r []models.AttackRecord) { q.push("attacks", r) }))
		}
	}
	if src.Chat != nil {
		unsubs = append(unsubs, src.Chat.Subscribe(services.RecentChatSize, func(m []models.ChatMessage) { q.push("chat", m) }))
	}
	if src.Roster != nil {
		unsubs = append(unsubs, src.Roster.Subscribe(func(u []models.OnlineUser) { q.push("roster", u) }))
	}
	defer func() {
		for _, unsub := range unsubs {
			unsub()
		}
		close(done)
		<-writerDone
		log.Printf("⏹️ [Feed] %s disconnected", userID)
	}()

	go func() {
		defer close(writerDone)
		writeFeed(conn, q, done)
	}()

	log.Printf("🔌 [Feed] %s connected", userID)
	for {
		var cmd feedCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		switch cmd.Type {
		case "chat":
			if src.Chat != nil {
				if _, err := src.Chat.Send(ctx, userID, userName, cmd.Message); err != nil {
					q.push("error", fiber.Map{"error": err.Error()})
				}
			}
		case "heartbeat":
			if src.Roster != nil {
				if err := src.Roster.Heartbeat(ctx, userID, cmd.WeaponName); err != nil {
					log.Printf("⚠️ [Feed] heartbeat for %s: %v", userID, err)
				}
			}
		default:
			q.push("error", fiber.Map{"error": fmt.Sprintf("unknown command %q", cmd.Type)})
		}
		cancel()
	}
}
