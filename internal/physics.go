package internal

import "math"

// 物理調校常數
//
// 速度單位為「像素/物理步」：物理以固定 60 Hz 子步推進，
// 與牆鐘時間解耦，確保數值穩定（伺服器負載抖動不影響積分步長）。
const (
	// PhysicsTickRate 物理子步頻率（Hz）
	PhysicsTickRate = 60
	// PuckRadius 冰球半徑（像素）
	PuckRadius = 15.0
	// Friction 每 tick 速度衰減係數
	Friction = 0.98
	// Restitution 碰撞恢復係數（牆面與球體）
	Restitution = 0.8
	// MaxVelocity 速度上限（像素/物理步）
	MaxVelocity = 20.0
	// SlingImpulseScale 彈弓輸入的衝量比例（每拉動 1 像素換算的速度增量）
	SlingImpulseScale = 0.1
)

// Body 物理剛體（圓形）
type Body struct {
	Position Vector2D
	Velocity Vector2D
	Radius   float64
}

// PhysicsWorld 物理世界能力介面
//
// 模擬引擎只透過這個窄介面依賴物理：
// 建立圓形剛體、推進世界、讀寫位置速度、施加衝量。
// 物理提供者因此可替換，測試時可用 stub。
type PhysicsWorld interface {
	// Rebuild 清空世界並依冰球集合重建剛體
	Rebuild(pucks []Puck)
	// Step 以固定子步推進世界一次
	Step()
	// Body 查找剛體，不存在時返回 (nil, false)
	Body(id string) (*Body, bool)
	// ApplyImpulse 對剛體施加速度衝量；剛體不存在時返回 false
	ApplyImpulse(id string, impulse Vector2D) bool
	// ForEach 遍歷所有剛體
	ForEach(fn func(id string, b *Body))
}

// boardWorld 板面物理世界
//
// 無重力的 2D 世界：圓形動態剛體 + 板面四周的靜態邊界。
// 積分器為簡單的逐 tick 歐拉積分，配合等質量彈性碰撞，
// 對休閒對戰來說「足夠穩定、足夠確定」即可。
type boardWorld struct {
	width  float64
	height float64
	bodies map[string]*Body
	order  []string // 固定遍歷順序，保證模擬可重現
}

// NewBoardWorld 創建板面物理世界
func NewBoardWorld(width, height float64) PhysicsWorld {
	return &boardWorld{
		width:  width,
		height: height,
		bodies: make(map[string]*Body),
	}
}

func (w *boardWorld) Rebuild(pucks []Puck) {
	w.bodies = make(map[string]*Body, len(pucks))
	w.order = w.order[:0]
	for _, p := range pucks {
		w.bodies[p.ID] = &Body{
			Position: p.Position,
			Velocity: p.Velocity,
			Radius:   p.Radius,
		}
		w.order = append(w.order, p.ID)
	}
}

func (w *boardWorld) Step() {
	// 位置積分
	for _, id := range w.order {
		b := w.bodies[id]
		b.Position.X += b.Velocity.X
		b.Position.Y += b.Velocity.Y
	}

	// 邊界反彈
	for _, id := range w.order {
		w.collideWalls(w.bodies[id])
	}

	// 球體間碰撞（成對檢查，順序固定）
	for i := 0; i < len(w.order); i++ {
		for j := i + 1; j < len(w.order); j++ {
			collideBodies(w.bodies[w.order[i]], w.bodies[w.order[j]])
		}
	}
}

// collideWalls 邊界碰撞：位置夾回板內，法向速度反向並套用恢復係數
func (w *boardWorld) collideWalls(b *Body) {
	if b.Position.X-b.Radius < 0 {
		b.Position.X = b.Radius
		b.Velocity.X = -b.Velocity.X * Restitution
	} else if b.Position.X+b.Radius > w.width {
		b.Position.X = w.width - b.Radius
		b.Velocity.X = -b.Velocity.X * Restitution
	}
	if b.Position.Y-b.Radius < 0 {
		b.Position.Y = b.Radius
		b.Velocity.Y = -b.Velocity.Y * Restitution
	} else if b.Position.Y+b.Radius > w.height {
		b.Position.Y = w.height - b.Radius
		b.Velocity.Y = -b.Velocity.Y * Restitution
	}
}

// collideBodies 等質量圓形剛體碰撞
//
// 重疊時沿法線平均推開，僅在相互接近時交換法向速度分量
// 並套用恢復係數（遠離中的剛體不再施加衝量，避免黏連抖動）。
func collideBodies(a, b *Body) {
	dx := b.Position.X - a.Position.X
	dy := b.Position.Y - a.Position.Y
	dist := math.Hypot(dx, dy)
	minDist := a.Radius + b.Radius

	if dist >= minDist {
		return
	}

	// 完全重合時沒有法線方向，任選 x 軸
	var nx, ny float64
	if dist > 0 {
		nx, ny = dx/dist, dy/dist
	} else {
		nx, ny = 1, 0
	}

	// 位置修正：各退一半重疊量
	overlap := minDist - dist
	a.Position.X -= nx * overlap / 2
	a.Position.Y -= ny * overlap / 2
	b.Position.X += nx * overlap / 2
	b.Position.Y += ny * overlap / 2

	// 相對法向速度 > 0 表示正在遠離
	relVN := (b.Velocity.X-a.Velocity.X)*nx + (b.Velocity.Y-a.Velocity.Y)*ny
	if relVN > 0 {
		return
	}

	// 等質量彈性碰撞衝量
	impulse := -(1 + Restitution) * relVN / 2
	a.Velocity.X -= impulse * nx
	a.Velocity.Y -= impulse * ny
	b.Velocity.X += impulse * nx
	b.Velocity.Y += impulse * ny
}

func (w *boardWorld) Body(id string) (*Body, bool) {
	b, ok := w.bodies[id]
	return b, ok
}

func (w *boardWorld) ApplyImpulse(id string, impulse Vector2D) bool {
	b, ok := w.bodies[id]
	if !ok {
		return false
	}
	b.Velocity.X += impulse.X
	b.Velocity.Y += impulse.Y
	return true
}

func (w *boardWorld) ForEach(fn func(id string, b *Body)) {
	for _, id := range w.order {
		fn(id, w.bodies[id])
	}
}
