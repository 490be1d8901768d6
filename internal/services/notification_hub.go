package services

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"dealflow/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type HubMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	UserID    string      `json:"-"`
	Timestamp time.Time   `json:"timestamp"`
}

type HubClient struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	Send   chan HubMessage
	Hub    *NotificationHub
}

// NotificationHub 将通知实时推送给已连接的用户
type NotificationHub struct {
	clients    map[string]*HubClient
	broadcast  chan HubMessage
	register   chan *HubClient
	unregister chan *HubClient
	mutex      sync.RWMutex
	// 可选：用于处理客户端发来的 mark_read 消息
	db *gorm.DB
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 生产环境需要验证源
	},
}

func NewNotificationHub() *NotificationHub {
	return &NotificationHub{
		clients:    make(map[string]*HubClient),
		broadcast:  make(chan HubMessage),
		register:   make(chan *HubClient),
		unregister: make(chan *HubClient),
	}
}

// SetDB 为 NotificationHub 注入可选的数据库实例，用于在线标记已读
func (h *NotificationHub) SetDB(db *gorm.DB) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.db = db
}

func (h *NotificationHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.ID] = client
			h.mutex.Unlock()
			logrus.Infof("Client %s connected (user %s)", client.ID, client.UserID)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
				logrus.Infof("Client %s disconnected", client.ID)
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.RLock()
			for _, client := range h.clients {
				if message.UserID == "" || client.UserID == message.UserID {
					select {
					case client.Send <- message:
					default:
						close(client.Send)
						delete(h.clients, client.ID)
					}
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// HandleConnection upgrades the request and registers the client. The caller
// must have authenticated the user and set "user_id" in the context.
func (h *NotificationHub) HandleConnection(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "message": "missing user identity"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Error("WebSocket upgrade failed:", err)
		return
	}

	client := &HubClient{
		ID:     uuid.NewString(),
		UserID: userID,
		Conn:   conn,
		Send:   make(chan HubMessage, 256),
		Hub:    h,
	}

	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *HubClient) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, messageBytes, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket error: %v", err)
			}
			break
		}

		var message HubMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			logrus.Error("Invalid message format:", err)
			continue
		}

		switch message.Type {
		case "mark_read":
			c.handleMarkRead(message)
		case "ping":
			c.Send <- HubMessage{Type: "pong", Timestamp: time.Now()}
		default:
			logrus.Warnf("Unknown message type: %s", message.Type)
		}
	}
}

func (c *HubClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				logrus.Error("WriteJSON error:", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMarkRead 在线标记单条通知为已读
func (c *HubClient) handleMarkRead(message HubMessage) {
	hub := c.Hub
	hub.mutex.RLock()
	db := hub.db
	hub.mutex.RUnlock()
	if db == nil {
		return
	}

	data, ok := message.Data.(map[string]interface{})
	if !ok {
		return
	}
	id, numeric := toFloat(data["id"])
	if !numeric || id <= 0 {
		return
	}

	if err := db.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", uint(id), c.UserID).
		Update("read", true).Error; err != nil {
		logrus.Warnf("Failed to mark notification read: %v", err)
	}
}

// PublishNotification 推送通知给其所属用户的全部连接
func (h *NotificationHub) PublishNotification(n *models.Notification) {
	h.broadcast <- HubMessage{
		Type:      "notification",
		Data:      n,
		UserID:    n.UserID,
		Timestamp: time.Now(),
	}
}

// SendToUser 推送任意消息给指定用户
func (h *NotificationHub) SendToUser(userID string, message HubMessage) {
	message.UserID = userID
	message.Timestamp = time.Now()
	h.broadcast <- message
}

func (h *NotificationHub) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
