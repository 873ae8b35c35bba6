package internal

import (
	"encoding/json"
	"fmt"
	"time"
)

// 訊息協定
//
// 入站指令與出站事件都使用統一信封 {type, payload}。
// 每個入站負載在使用前依結構契約驗證；驗證失敗只對發送者回報錯誤，
// 伺服器狀態不做任何變動。

// 入站訊息類型
const (
	MsgRoomCreate = "room:create"
	MsgRoomJoin   = "room:join"
	MsgRoomLeave  = "room:leave"
	MsgGameStart  = "game:start"
	MsgGamePause  = "game:pause"
	MsgGameReset  = "game:reset"
	MsgInputSling = "input:sling"
	MsgChatSend   = "chat:send"
	MsgAssignTeam = "admin:assign-team"
	MsgKickPlayer = "admin:kick"
)

// 出站訊息類型
const (
	MsgConnected    = "connected"
	MsgRoomState    = "room:state"
	MsgGameSnapshot = "game:snapshot"
	MsgGameEvent    = "game:event"
	MsgChat         = "chat:msg"
	MsgError        = "error"
)

// Envelope 訊息信封
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope 包裝出站訊息（payload 無法序列化屬程式錯誤，交由呼叫端記錄）
func NewEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// ---- 入站負載 ----

// CreateRoomRequest 創建房間
type CreateRoomRequest struct {
	HostName  string      `json:"hostName"`
	HostPlays bool        `json:"hostPlays"`
	Config    *GameConfig `json:"config,omitempty"`
}

// Validate 驗證負載
func (req *CreateRoomRequest) Validate() error {
	if err := validateName(req.HostName); err != nil {
		return err
	}
	if req.Config != nil {
		if err := req.Config.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// JoinRoomRequest 加入房間
type JoinRoomRequest struct {
	Code string     `json:"code"`
	Name string     `json:"name"`
	Role PlayerRole `json:"role,omitempty"`
}

// Validate 驗證負載
func (req *JoinRoomRequest) Validate() error {
	if len(req.Code) != RoomCodeLength {
		return NewError(ErrCodeInvalidInput, fmt.Sprintf("code must be %d characters", RoomCodeLength))
	}
	if err := validateName(req.Name); err != nil {
		return err
	}
	switch req.Role {
	case "", RolePlayer, RoleSpectator, RoleAdmin:
	default:
		return NewError(ErrCodeInvalidInput, "invalid role")
	}
	return nil
}

// SlingRequest 彈弓輸入
type SlingRequest struct {
	PuckID     string   `json:"puckId"`
	Origin     Vector2D `json:"origin"`
	PullVector Vector2D `json:"pullVector"`
}

// Validate 驗證負載
func (req *SlingRequest) Validate() error {
	if req.PuckID == "" {
		return NewError(ErrCodeInvalidInput, "puckId is required")
	}
	return nil
}

// ChatRequest 聊天訊息
type ChatRequest struct {
	Text string `json:"text"`
}

// Validate 驗證負載
func (req *ChatRequest) Validate() error {
	if len(req.Text) < 1 || len(req.Text) > 500 {
		return NewError(ErrCodeInvalidInput, "text must be 1-500 characters")
	}
	return nil
}

// AssignTeamRequest 分配隊伍（限房主）
type AssignTeamRequest struct {
	PlayerID string `json:"playerId"`
	Team     Team   `json:"team"`
}

// Validate 驗證負載
func (req *AssignTeamRequest) Validate() error {
	if req.PlayerID == "" {
		return NewError(ErrCodeInvalidInput, "playerId is required")
	}
	switch req.Team {
	case TeamRed, TeamBlue, TeamNone:
		return nil
	default:
		return NewError(ErrCodeInvalidInput, "invalid team")
	}
}

// KickPlayerRequest 踢出玩家（限房主）
type KickPlayerRequest struct {
	PlayerID string `json:"playerId"`
}

// Validate 驗證負載
func (req *KickPlayerRequest) Validate() error {
	if req.PlayerID == "" {
		return NewError(ErrCodeInvalidInput, "playerId is required")
	}
	return nil
}

// validateName 顯示名稱：1–50 字元
func validateName(name string) error {
	if len(name) < 1 || len(name) > 50 {
		return NewError(ErrCodeInvalidInput, "name must be 1-50 characters")
	}
	return nil
}

// ---- 出站負載 ----

// ConnectedPayload 連線確認（告知連接對應的玩家 ID）
type ConnectedPayload struct {
	PlayerID string `json:"playerId"`
}

// RoomStatePayload 房間狀態（名冊/配置變更時廣播，加入/創建時單發）
type RoomStatePayload struct {
	Room RoomSnapshot `json:"room"`
}

// GameSnapshotPayload 遊戲快照（活躍房間每 tick 廣播）
type GameSnapshotPayload struct {
	State     GameState `json:"state"`
	Timestamp int64     `json:"timestamp"`
}

// GameEventPayload 遊戲事件
type GameEventPayload struct {
	Type      GameEventType `json:"type"`
	Payload   any           `json:"payload"`
	Timestamp int64         `json:"timestamp"`
}

// ChatPayload 聊天廣播
type ChatPayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// ErrorPayload 錯誤回報（只發給肇事連接，絕不廣播）
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// nowMillis 毫秒時間戳
func nowMillis() int64 {
	return time.Now().UnixMilli()
}
