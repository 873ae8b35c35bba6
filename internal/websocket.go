package internal

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何把每個房間的權威狀態實時推送給所有客戶端？
//
// 核心挑戰：
//   1. 連接管理：連接身份即玩家身份（斷線即隱式離開房間）
//   2. 心跳機制：檢測死連接（54s Ping / 60s Pong 超時）
//   3. 並發發送：慢客戶端不能拖累整個房間的廣播
//
// 設計方案：
//   ✅ Hub 模式 - 集中管理所有連接（playerID → Connection）
//   ✅ 緩衝 channel - 異步發送，緩衝滿即丟棄（fire-and-forget）
//   ✅ sync.Once - 確保 Send channel 只關閉一次

// MessageHandler 入站訊息處理能力（由 SessionGateway 實現）
type MessageHandler interface {
	HandleMessage(playerID string, data []byte)
	HandleDisconnect(playerID string)
}

// Hub WebSocket 連接中心
//
// 傳輸邊界：連接以玩家 ID 為鍵，入站訊框轉交閘道層，
// 出站推送實現閘道層的 Sender 介面。
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	handler  MessageHandler

	mu    sync.RWMutex
	conns map[string]*Connection // playerID -> Connection
}

// Connection WebSocket 連接
type Connection struct {
	PlayerID  string
	Conn      *websocket.Conn
	Send      chan []byte
	hub       *Hub
	closeOnce sync.Once
}

// NewHub 創建 WebSocket Hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 生產環境應檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		conns: make(map[string]*Connection),
	}
}

// SetHandler 設置入站訊息處理器（啟動服務前設置一次）
func (hub *Hub) SetHandler(handler MessageHandler) {
	hub.handler = handler
}

// ServeWS 處理 WebSocket 連接
//
// 玩家 ID 與傳輸層連接身份一致：預設由伺服器分配，
// 查詢參數 player_id 允許客戶端重連時帶回原身份。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		playerID = uuid.NewString()
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		PlayerID: playerID,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		hub:      hub,
	}

	hub.register(connection)

	go connection.writePump()
	go connection.readPump()

	// 告知連接對應的玩家 ID（客戶端據此辨識自己）
	if data, err := NewEnvelope(MsgConnected, ConnectedPayload{PlayerID: playerID}); err == nil {
		hub.Send(playerID, data)
	}

	hub.logger.Info("WebSocket 連接建立", "player_id", playerID)
}

// register 註冊連接（同一玩家的舊連接被新連接取代）
func (hub *Hub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if old, exists := hub.conns[conn.PlayerID]; exists {
		old.closeOnce.Do(func() {
			close(old.Send)
		})
		old.Conn.Close()
	}
	hub.conns[conn.PlayerID] = conn
}

// unregister 取消註冊連接
func (hub *Hub) unregister(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if actual, exists := hub.conns[conn.PlayerID]; exists && actual == conn {
		delete(hub.conns, conn.PlayerID)
		conn.closeOnce.Do(func() {
			close(conn.Send)
		})
	}
}

// Send 對指定玩家的連接發送訊息
//
// 實現閘道層的 Sender 介面。fire-and-forget：
// 連接不存在或緩衝已滿時直接丟棄（慢客戶端不能阻塞模擬迴圈）。
func (hub *Hub) Send(playerID string, data []byte) {
	hub.mu.RLock()
	conn, exists := hub.conns[playerID]
	hub.mu.RUnlock()

	if !exists {
		return
	}

	select {
	case conn.Send <- data:
	default:
		hub.logger.Warn("連接緩衝區滿，訊息丟棄", "player_id", playerID)
	}
}

// ConnectionCount 當前連接數
func (hub *Hub) ConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.conns)
}

// Stop 停止 Hub，關閉所有連接
func (hub *Hub) Stop() {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	for _, conn := range hub.conns {
		conn.closeOnce.Do(func() {
			close(conn.Send)
		})
		conn.Conn.Close()
	}
	hub.conns = make(map[string]*Connection)

	hub.logger.Info("WebSocket Hub 已停止")
}

// readPump 讀取客戶端訊息
//
// 心跳機制（讀取端）：60 秒內未收到任何訊息（含 Pong）即關閉連接，
// 配合 writePump 的 54 秒 Ping（留 6 秒余量）。
// 連接關閉時向閘道層發出隱式離開。
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Conn.Close()
		if c.hub.handler != nil {
			c.hub.handler.HandleDisconnect(c.PlayerID)
		}
	}()

	if err := c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"player_id", c.PlayerID)
			}
			break
		}

		if messageType == websocket.TextMessage && c.hub.handler != nil {
			c.hub.handler.HandleMessage(c.PlayerID, message)
		}
	}
}

// writePump 寫入訊息到客戶端
//
// 心跳機制（發送端）：54 秒間隔發送 Ping，避開常見的 60 秒代理超時。
// 出站訊息經緩衝 channel 異步發送，批量清空隊列減少系統呼叫。
func (c *Connection) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連接
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的訊息
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
