package internal

import (
	"sort"
	"sync"
	"time"
)

// Room 遊戲房間
//
// 一局遊戲的隔離與權威單位：獨佔玩家名冊、不可變配置與唯一一個模擬引擎。
// 房間只會被 SessionGateway 的處理器和自己的廣播計時器操作，
// 絕不會被其他房間的程式路徑並發訪問。
//
// 並發控制：名冊採 RWMutex（讀多寫少，廣播快照頻繁而名冊變動少）；
// 引擎內部自帶互斥鎖，兩把鎖不會巢狀持有。
type Room struct {
	Code      string // 簡短可分享的房間碼（6 字元）
	HostID    string // 房主 ID，創建後不可變
	CreatedAt time.Time

	config  GameConfig
	engine  *Engine
	mu      sync.RWMutex
	players map[string]*Player
}

// RoomSnapshot 房間狀態快照
//
// 供廣播使用的複合唯讀視圖。必須是深拷貝：
// 快照發出後，即時狀態的後續修改不得回溯影響已發送的內容。
type RoomSnapshot struct {
	Code      string     `json:"code"`
	HostID    string     `json:"hostId"`
	Players   []Player   `json:"players"`
	Config    GameConfig `json:"config"`
	GameState GameState  `json:"gameState"`
}

// NewRoom 創建房間
//
// 房間碼由 Registry 生成並保證唯一；配置在此之前已驗證。
func NewRoom(code, hostID string, config GameConfig) *Room {
	return &Room{
		Code:      code,
		HostID:    hostID,
		CreatedAt: time.Now(),
		config:    config,
		engine:    NewEngine(config),
		players:   make(map[string]*Player),
	}
}

// AddPlayer 加入玩家
//
// 永遠成功：容量由呼叫者（閘道層）在呼叫前檢查，房間本身不做容量判斷。
func (r *Room) AddPlayer(id, name string, role PlayerRole, team Team) *Player {
	r.mu.Lock()
	defer r.mu.Unlock()

	player := &Player{
		ID:          id,
		Name:        name,
		Role:        role,
		Team:        team,
		IsConnected: true,
		JoinedAt:    time.Now(),
	}
	r.players[id] = player
	return player
}

// RemovePlayer 移除玩家
//
// 返回該 ID 是否存在。
func (r *Room) RemovePlayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.players[id]
	delete(r.players, id)
	return exists
}

// GetPlayer 查找玩家
func (r *Room) GetPlayer(id string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.players[id]
	if !exists {
		return Player{}, false
	}
	return *p, true
}

// Players 玩家列表（值拷貝，依加入時間排序）
func (r *Room) Players() []Player {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.playersLocked()
}

func (r *Room) playersLocked() []Player {
	players := make([]Player, 0, len(r.players))
	for _, p := range r.players {
		players = append(players, *p)
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].JoinedAt.Before(players[j].JoinedAt)
	})
	return players
}

// UpdatePlayerTeam 更新玩家隊伍（玩家不存在時返回 false）
func (r *Room) UpdatePlayerTeam(id string, team Team) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.players[id]
	if !exists {
		return false
	}
	p.Team = team
	return true
}

// UpdatePlayerConnection 更新玩家連線旗標（玩家不存在時返回 false）
func (r *Room) UpdatePlayerConnection(id string, connected bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.players[id]
	if !exists {
		return false
	}
	p.IsConnected = connected
	return true
}

// CanAddPlayer 名冊是否尚有空位
func (r *Room) CanAddPlayer() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players) < r.config.MaxPlayers
}

// IsHost 是否為房主
func (r *Room) IsHost(id string) bool {
	return id == r.HostID
}

// HasActivePlayers 是否仍有在線玩家
func (r *Room) HasActivePlayers() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.players {
		if p.IsConnected {
			return true
		}
	}
	return false
}

// PlayerCount 玩家數量
func (r *Room) PlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// Config 房間配置（值拷貝）
func (r *Room) Config() GameConfig {
	return r.config
}

// Engine 房間的模擬引擎
func (r *Room) Engine() *Engine {
	return r.engine
}

// Snapshot 房間狀態快照（深拷貝）
func (r *Room) Snapshot() RoomSnapshot {
	r.mu.RLock()
	players := r.playersLocked()
	r.mu.RUnlock()

	return RoomSnapshot{
		Code:      r.Code,
		HostID:    r.HostID,
		Players:   players,
		Config:    r.config,
		GameState: r.engine.Snapshot(),
	}
}
