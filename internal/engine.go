package internal

import (
	"math"
	"sync"
	"time"
)

// UpdateOutcome 單次模擬更新的結果，供閘道層決定事件與計時器去留
type UpdateOutcome struct {
	Scored       []Team    // 本次更新得分的隊伍（可能兩隊同時得分）
	Finished     bool      // 時間到，對局結束
	State        GameState // 更新後的狀態快照
	SnapshotTime time.Time
}

// Engine 模擬引擎
//
// 將物理世界與遊戲狀態機耦合為一個房間的權威模擬：
// 逐 tick 推進物理、套用自定義阻力與速度上限、偵測得分、驅動對局時鐘。
//
// 並發設計：同一房間的指令（管理操作、玩家輸入）與該房間的 tick
// 以引擎互斥鎖嚴格序列化：一次 tick 與一條指令絕不部分交錯，
// GameState 的讀寫不會出現撕裂。不同房間各持有自己的引擎，完全隔離。
//
// 時鐘解耦（已接受的取捨）：物理以固定 1/60 秒子步推進，與牆鐘抖動
// 無關，保持數值穩定；對局時鐘則按實測的牆鐘流逝推進。伺服器負載高時
// 兩者會輕微漂移，這是設計決定而非缺陷。
type Engine struct {
	mu         sync.Mutex
	config     GameConfig
	state      *GameStateManager
	world      PhysicsWorld
	running    bool
	lastUpdate time.Time
}

// NewEngine 創建模擬引擎
func NewEngine(config GameConfig) *Engine {
	e := &Engine{
		config: config,
		state:  NewGameStateManager(config),
		world:  NewBoardWorld(config.BoardWidth, config.BoardHeight),
	}
	e.world.Rebuild(e.state.Snapshot().Pucks)
	return e
}

// NewEngineWithWorld 以指定的物理世界創建引擎（測試時注入 stub）
func NewEngineWithWorld(config GameConfig, world PhysicsWorld) *Engine {
	e := &Engine{
		config: config,
		state:  NewGameStateManager(config),
		world:  world,
	}
	e.world.Rebuild(e.state.Snapshot().Pucks)
	return e
}

// Start 開始對局
//
// 狀態機不接受轉換時（finished 是終態）維持靜默 no-op，引擎不啟動。
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Start()
	if e.state.Status() != StatusPlaying {
		return
	}
	e.running = true
	e.lastUpdate = time.Now()
}

// Pause 暫停對局
//
// 只切換 running 旗標，物理世界不會被拆除；暫停期間跳過積分。
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pauseLocked()
}

func (e *Engine) pauseLocked() {
	e.state.Pause()
	e.running = false
}

// Resume 恢復對局
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Status() != StatusPaused {
		return
	}
	e.state.Resume()
	e.running = true
	e.lastUpdate = time.Now()
}

// Reset 完整重置：狀態機重新初始化，物理剛體全部重建
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state.Reset(e.config.PucksPerTeam, e.config.RoundDuration)
	e.world.Rebuild(e.state.Snapshot().Pucks)
	e.running = false
}

// Update 推進一次模擬
//
// 非 running 時為 no-op。流程：
//  1. 以固定子步推進物理世界（與牆鐘抖動無關）
//  2. 每個剛體套用阻力並夾制速度上限（超限時等比例縮放，保方向）
//  3. 回寫剛體位置速度到對應冰球
//  4. 以實測牆鐘差推進對局時鐘
//  5. 得分判定；得分即暫停引擎，讓房間展示得分再由人或計時器恢復
func (e *Engine) Update() UpdateOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if !e.running {
		return UpdateOutcome{State: e.state.Snapshot(), SnapshotTime: now}
	}

	delta := now.Sub(e.lastUpdate).Seconds()
	e.lastUpdate = now

	e.world.Step()

	e.world.ForEach(func(id string, b *Body) {
		b.Velocity.X *= Friction
		b.Velocity.Y *= Friction

		speed := math.Hypot(b.Velocity.X, b.Velocity.Y)
		if speed > MaxVelocity {
			scale := MaxVelocity / speed
			b.Velocity.X *= scale
			b.Velocity.Y *= scale
		}

		e.state.UpdatePuck(id, b.Position, b.Velocity)
	})

	e.state.Tick(delta)

	outcome := UpdateOutcome{SnapshotTime: now}
	if result := e.state.CheckScoring(); result.Scored {
		outcome.Scored = result.Teams
		e.pauseLocked()
	}
	if e.state.IsFinished() {
		outcome.Finished = true
		e.running = false
	}
	outcome.State = e.state.Snapshot()
	return outcome
}

// HandleInput 處理彈弓輸入
//
// 經典的「拉回放開」機制：施加與拉動向量相反、幅度成正比的衝量。
// 輸入指向的冰球不存在時（重置後的過期輸入）靜默忽略，不回報錯誤：
// 這是客戶端延遲與伺服器重置之間的正常競態。
func (e *Engine) HandleInput(puckID string, pull Vector2D) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.world.ApplyImpulse(puckID, Vector2D{
		X: -pull.X * SlingImpulseScale,
		Y: -pull.Y * SlingImpulseScale,
	})
}

// Snapshot 獲取遊戲狀態快照
func (e *Engine) Snapshot() GameState {
	return e.state.Snapshot()
}

// Status 當前對局狀態
func (e *Engine) Status() GameStatus {
	return e.state.Status()
}

// IsFinished 對局是否已結束
func (e *Engine) IsFinished() bool {
	return e.state.IsFinished()
}

// Config 引擎配置（值拷貝）
func (e *Engine) Config() GameConfig {
	return e.config
}
