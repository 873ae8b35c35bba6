package internal

import (
	"sync"

	"github.com/google/uuid"
)

// 冰球佈局常數
//
// 兩列式標準佈局：紅隊 N 顆冰球在距左緣固定偏移處排成垂直一列，
// 藍隊鏡像於距右緣相同偏移處，垂直置中、等距分佈。
// 佈局對給定的 N 完全確定，重置後必須精確重現（公平性與重現性）。
const (
	// PuckColumnOffset 冰球列與所屬邊緣的水平偏移（像素）
	PuckColumnOffset = 150.0
	// PuckSpacing 同列冰球的垂直間距（像素）
	PuckSpacing = 60.0
)

// ScoreResult 得分判定結果
type ScoreResult struct {
	Scored bool
	Teams  []Team // 得分的隊伍；兩隊同 tick 清空時同時得分
}

// GameStateManager 遊戲狀態管理器
//
// 持有權威 GameState 與其狀態機轉換規則；純狀態邏輯，
// 不涉及網路與物理積分細節。
//
// 狀態轉換表：
//   - Start：waiting|paused → playing；從 waiting 開始時回合數 +1
//   - Pause：playing → paused
//   - Resume：paused → playing（等同從 paused 的 Start，不增加回合數）
//   - Tick(Δt)：playing 且剩餘時間 > 0 時遞減，歸零即 finished
//   - Reset：任何狀態 → waiting，完整重新初始化
//
// 前置條件不符的 Start/Pause/Resume 呼叫是靜默 no-op，不回傳錯誤：
// UI 的按鈕可能與狀態變化競態，報錯只會徒增客戶端負擔。
type GameStateManager struct {
	mu     sync.RWMutex
	state  GameState
	config GameConfig
}

// NewGameStateManager 創建遊戲狀態管理器
func NewGameStateManager(config GameConfig) *GameStateManager {
	m := &GameStateManager{
		config: config,
		state: GameState{
			Status:        StatusWaiting,
			Score:         Score{},
			TimeRemaining: config.RoundDuration,
			CurrentRound:  0,
		},
	}
	m.state.Pucks = layoutPucks(config)
	return m
}

// layoutPucks 依標準兩列式佈局生成冰球
func layoutPucks(config GameConfig) []Puck {
	n := config.PucksPerTeam
	pucks := make([]Puck, 0, 2*n)
	centerY := config.BoardHeight / 2

	columns := []struct {
		x    float64
		team Team
	}{
		{PuckColumnOffset, TeamRed},
		{config.BoardWidth - PuckColumnOffset, TeamBlue},
	}

	for _, col := range columns {
		for i := 0; i < n; i++ {
			y := centerY - float64(n)/2*PuckSpacing + float64(i)*PuckSpacing
			pucks = append(pucks, Puck{
				ID:       uuid.NewString(),
				Position: Vector2D{X: col.x, Y: y},
				Radius:   PuckRadius,
				Team:     col.team,
			})
		}
	}

	return pucks
}

// Start 開始對局
//
// 前置條件：waiting 或 paused。只有從 waiting 開始才增加回合數。
func (m *GameStateManager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state.Status {
	case StatusWaiting:
		m.state.Status = StatusPlaying
		m.state.CurrentRound++
	case StatusPaused:
		m.state.Status = StatusPlaying
	}
}

// Pause 暫停對局（僅 playing 狀態有效）
func (m *GameStateManager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status == StatusPlaying {
		m.state.Status = StatusPaused
	}
}

// Resume 恢復對局（僅 paused 狀態有效，不增加回合數）
func (m *GameStateManager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status == StatusPaused {
		m.state.Status = StatusPlaying
	}
}

// Reset 完整重新初始化
//
// 比分歸零、回合歸零、時鐘重設、冰球重建為標準佈局。
func (m *GameStateManager) Reset(pucksPerTeam int, roundDuration float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config.PucksPerTeam = pucksPerTeam
	m.config.RoundDuration = roundDuration

	m.state.Status = StatusWaiting
	m.state.Score = Score{}
	m.state.TimeRemaining = roundDuration
	m.state.CurrentRound = 0
	m.state.Pucks = layoutPucks(m.config)
}

// Tick 推進對局時鐘
//
// 剩餘時間在 playing 狀態下單調遞減且永不為負；歸零即轉入 finished。
func (m *GameStateManager) Tick(delta float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status != StatusPlaying || m.state.TimeRemaining <= 0 {
		return
	}

	m.state.TimeRemaining -= delta
	if m.state.TimeRemaining <= 0 {
		m.state.TimeRemaining = 0
		m.state.Status = StatusFinished
	}
}

// UpdatePuck 回寫單顆冰球的位置與速度（未知 ID 靜默忽略）
func (m *GameStateManager) UpdatePuck(id string, position, velocity Vector2D) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.state.Pucks {
		if m.state.Pucks[i].ID == id {
			m.state.Pucks[i].Position = position
			m.state.Pucks[i].Velocity = velocity
			return
		}
	}
}

// CheckScoring 得分判定
//
// 以板面水平中線劃分半場，計算各隊仍留在己方半場的己方冰球數。
// 初始至少有一顆冰球的隊伍，己方半場歸零的瞬間即輸掉本回合，對方得一分。
//
// 平局仲裁：兩個半場在同一次判定中同時清空時，兩隊各得一分。
// 以同一份冰球快照先算後判，結果與檢查順序無關。
func (m *GameStateManager) CheckScoring() ScoreResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	midline := m.config.BoardWidth / 2
	var redOnOwn, blueOnOwn, redTotal, blueTotal int

	for _, p := range m.state.Pucks {
		switch p.Team {
		case TeamRed:
			redTotal++
			if p.Position.X < midline {
				redOnOwn++
			}
		case TeamBlue:
			blueTotal++
			if p.Position.X >= midline {
				blueOnOwn++
			}
		}
	}

	var result ScoreResult
	if redOnOwn == 0 && redTotal > 0 {
		m.state.Score.Blue++
		result.Scored = true
		result.Teams = append(result.Teams, TeamBlue)
	}
	if blueOnOwn == 0 && blueTotal > 0 {
		m.state.Score.Red++
		result.Scored = true
		result.Teams = append(result.Teams, TeamRed)
	}
	return result
}

// Snapshot 獲取狀態快照（深拷貝，與即時狀態完全獨立）
func (m *GameStateManager) Snapshot() GameState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// Status 當前狀態
func (m *GameStateManager) Status() GameStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Status
}

// IsFinished 對局是否已結束
func (m *GameStateManager) IsFinished() bool {
	return m.Status() == StatusFinished
}
