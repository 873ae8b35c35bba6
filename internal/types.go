package internal

import (
	"fmt"
	"time"
)

// Team 隊伍
type Team string

const (
	TeamRed  Team = "red"  // 紅隊（左半場）
	TeamBlue Team = "blue" // 藍隊（右半場）
	TeamNone Team = "none" // 未分配
)

// PlayerRole 玩家角色
//
// 權限設計：
//   - Admin：房主，房間生命週期操作（開始/暫停/重置/分隊/踢人）的唯一授權者
//   - Player：一般玩家，可以操作冰球
//   - Spectator：觀戰者，只接收狀態推送
type PlayerRole string

const (
	RoleAdmin     PlayerRole = "admin"
	RolePlayer    PlayerRole = "player"
	RoleSpectator PlayerRole = "spectator"
)

// GameStatus 遊戲狀態
//
// 有限狀態機設計：
//
//	waiting → playing ⇄ paused
//	           ↓
//	        finished（終態）
//
// 任何狀態都可以通過 Reset 回到 waiting（完整重新初始化，非一般轉換）。
type GameStatus string

const (
	StatusWaiting  GameStatus = "waiting"  // 等待開始
	StatusPlaying  GameStatus = "playing"  // 對局進行中
	StatusPaused   GameStatus = "paused"   // 暫停（得分展示或房主暫停）
	StatusFinished GameStatus = "finished" // 時間到，對局結束
)

// GameEventType 遊戲事件類型
type GameEventType string

const (
	EventPuckScored   GameEventType = "puck_scored"
	EventRoundEnd     GameEventType = "round_end"
	EventGameEnd      GameEventType = "game_end"
	EventPlayerJoined GameEventType = "player_joined"
	EventPlayerLeft   GameEventType = "player_left"
)

// Vector2D 2D 向量
type Vector2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Puck 冰球
//
// 在房間初始化與每次重置時批量創建，回合中由模擬引擎逐 tick 更新，
// 回合中不會新增或銷毀。
type Puck struct {
	ID       string   `json:"id"`
	Position Vector2D `json:"position"`
	Velocity Vector2D `json:"velocity"`
	Radius   float64  `json:"radius"`
	Team     Team     `json:"team"`
}

// Player 玩家資訊
//
// ID 與傳輸層連接身份一致；一個玩家同一時間最多屬於一個房間
// （由 Registry 的反向索引保證）。
type Player struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Role        PlayerRole `json:"role"`
	Team        Team       `json:"team"`
	IsConnected bool       `json:"isConnected"`
	JoinedAt    time.Time  `json:"joinedAt"`
}

// Score 比分
type Score struct {
	Red  int `json:"red"`
	Blue int `json:"blue"`
}

// GameConfig 遊戲配置（房間創建後不可變）
type GameConfig struct {
	MaxPlayers    int     `json:"maxPlayers" yaml:"max_players"`
	RoundDuration float64 `json:"roundDuration" yaml:"round_duration"` // 秒
	PucksPerTeam  int     `json:"pucksPerTeam" yaml:"pucks_per_team"`
	BoardWidth    float64 `json:"boardWidth" yaml:"board_width"`
	BoardHeight   float64 `json:"boardHeight" yaml:"board_height"`
}

// DefaultGameConfig 預設遊戲配置
func DefaultGameConfig() GameConfig {
	return GameConfig{
		MaxPlayers:    4,
		RoundDuration: 180,
		PucksPerTeam:  5,
		BoardWidth:    800,
		BoardHeight:   600,
	}
}

// Validate 驗證配置
//
// 任一欄位超出範圍即整體拒絕，不會部分套用。
func (c GameConfig) Validate() error {
	if c.MaxPlayers < 2 || c.MaxPlayers > 4 {
		return ErrInvalidConfig.WithDetails(fmt.Sprintf("maxPlayers must be 2-4, got %d", c.MaxPlayers))
	}
	if c.RoundDuration < 30 || c.RoundDuration > 600 {
		return ErrInvalidConfig.WithDetails(fmt.Sprintf("roundDuration must be 30-600s, got %g", c.RoundDuration))
	}
	if c.PucksPerTeam < 3 || c.PucksPerTeam > 10 {
		return ErrInvalidConfig.WithDetails(fmt.Sprintf("pucksPerTeam must be 3-10, got %d", c.PucksPerTeam))
	}
	if c.BoardWidth <= 0 || c.BoardHeight <= 0 {
		return ErrInvalidConfig.WithDetails("board dimensions must be positive")
	}
	return nil
}

// GameState 遊戲狀態快照
//
// 不變式：
//   - TimeRemaining >= 0，且在 playing 狀態下單調遞減
//   - 回合中冰球數量固定為 2 × PucksPerTeam
//   - CurrentRound 只在從 waiting 開始時遞增
type GameState struct {
	Status        GameStatus `json:"status"`
	Pucks         []Puck     `json:"pucks"`
	Score         Score      `json:"score"`
	TimeRemaining float64    `json:"timeRemaining"`
	CurrentRound  int        `json:"currentRound"`
}

// Clone 深拷貝遊戲狀態
//
// 廣播路徑讀取狀態的同時，模擬迴圈可能在修改它；
// 對外永遠交付獨立副本，已發出的快照不會被後續修改影響。
func (s GameState) Clone() GameState {
	out := s
	out.Pucks = make([]Puck, len(s.Pucks))
	copy(out.Pucks, s.Pucks)
	return out
}
