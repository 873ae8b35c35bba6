package internal

import (
	"crypto/rand"
	"log/slog"
	"sync"
	"time"
)

// 系統設計問題：
//   如何在單一行程中管理大量相互獨立的遊戲房間，
//   並維持「玩家 → 房間」1:1 索引在整個行程生命週期內一致？
//
// 核心挑戰：
//   1. 兩張共享映射（code→Room、player→code）是全行程唯一的跨房間狀態，
//      必須支援多個房間上下文的安全並發插入/移除/查詢
//   2. 房間碼生成必須碰撞重試，絕不靜默覆蓋既有房間
//   3. 房主離開或房間清空時的級聯拆除：反向索引與廣播計時器
//      一併清理。洩漏的計時器或殘留的索引是正確性缺陷，不是美觀問題
//   4. 斷線通知可能丟失（網路分割、行程突然退出），
//      需要定期掃描兜底（有界過期，而非即時偵測）
//
// 設計方案：
//   ✅ RWMutex 守護兩張映射，所有變動只經由文件化的操作
//   ✅ 房間碼碰撞檢查 + 重新生成
//   ✅ 拆除冪等：對已移除的房間再次拆除是安全的 no-op
//   ✅ 定期清理 goroutine（ticker + stopCh + WaitGroup）

// Registry 房間註冊表
//
// 行程級的唯一事實來源：房間碼 → Room 與玩家 ID → 房間碼。
type Registry struct {
	mu         sync.RWMutex
	rooms      map[string]*Room  // roomCode -> Room
	playerRoom map[string]string // playerID -> roomCode

	logger        *slog.Logger
	defaultConfig GameConfig
	onRoomClosed  func(code string) // 房間拆除掛鉤（閘道層取消廣播計時器）

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRegistry 創建房間註冊表
//
// cleanupInterval 為兜底清理掃描的間隔；<= 0 時不啟動背景清理
// （測試中手動呼叫 Cleanup）。
func NewRegistry(logger *slog.Logger, defaultConfig GameConfig, cleanupInterval time.Duration) *Registry {
	r := &Registry{
		rooms:         make(map[string]*Room),
		playerRoom:    make(map[string]string),
		logger:        logger,
		defaultConfig: defaultConfig,
		stopCh:        make(chan struct{}),
	}

	if cleanupInterval > 0 {
		r.wg.Add(1)
		go r.cleanupLoop(cleanupInterval)
	}

	return r
}

// SetOnRoomClosed 設置房間拆除掛鉤
//
// 閘道層用它在房間拆除時取消對應的廣播計時器。
// 必須在開始處理訊息前設置。
func (r *Registry) SetOnRoomClosed(fn func(code string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRoomClosed = fn
}

// CreateRoom 創建房間
//
// 生成唯一房間碼（與既有房間碰撞檢查，碰撞即重新生成）、
// 構建房間並將房主以 Admin 身份登記，同時寫入反向索引。
// config 為 nil 時使用預設配置。
func (r *Registry) CreateRoom(hostID, hostName string, hostPlays bool, config *GameConfig) (*Room, error) {
	cfg := r.defaultConfig
	if config != nil {
		cfg = *config
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.playerRoom[hostID]; exists {
		return nil, ErrAlreadyInRoom
	}

	code := r.generateRoomCodeLocked()
	room := NewRoom(code, hostID, cfg)

	team := TeamNone
	_ = hostPlays // 房主是否下場由客戶端的分隊流程決定，建房時一律未分配
	room.AddPlayer(hostID, hostName, RoleAdmin, team)

	r.rooms[code] = room
	r.playerRoom[hostID] = code

	r.logger.Info("房間已創建",
		"room_code", code,
		"host_id", hostID,
		"host_name", hostName,
		"max_players", cfg.MaxPlayers)

	return room, nil
}

// GetRoom 依房間碼查找房間
func (r *Registry) GetRoom(code string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[code]
	if !exists {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// GetRoomByPlayer 依玩家 ID 查找所在房間
func (r *Registry) GetRoomByPlayer(playerID string) (*Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	code, exists := r.playerRoom[playerID]
	if !exists {
		return nil, ErrPlayerNotInRoom
	}
	room, exists := r.rooms[code]
	if !exists {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// JoinRoom 登記玩家加入房間
//
// 只寫入反向索引：名冊變動是呼叫者在驗證後的獨立步驟，
// 因此絕不會出現「有名冊記錄卻沒有反向索引」的半套狀態。
func (r *Registry) JoinRoom(code, playerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.playerRoom[playerID]; exists {
		return ErrAlreadyInRoom
	}

	room, exists := r.rooms[code]
	if !exists {
		return ErrRoomNotFound
	}
	if !room.CanAddPlayer() {
		return ErrRoomFull
	}

	r.playerRoom[playerID] = code
	return nil
}

// LeaveRoom 玩家離開房間
//
// 同時從名冊與反向索引移除。房主離開即拆除整個房間
// （級聯清除所有剩餘成員的反向索引）；否則離開後無在線玩家
// 也一樣拆除。冪等：第二次離開是 no-op 失敗。
func (r *Registry) LeaveRoom(playerID string) error {
	r.mu.Lock()

	code, exists := r.playerRoom[playerID]
	if !exists {
		r.mu.Unlock()
		return ErrPlayerNotInRoom
	}

	room := r.rooms[code]
	delete(r.playerRoom, playerID)
	r.mu.Unlock()

	if room == nil {
		return ErrRoomNotFound
	}

	room.RemovePlayer(playerID)

	if room.IsHost(playerID) {
		r.closeRoom(code, "host_left")
	} else if !room.HasActivePlayers() {
		r.closeRoom(code, "no_active_players")
	}

	r.logger.Info("玩家離開房間",
		"room_code", code,
		"player_id", playerID)

	return nil
}

// Cleanup 兜底清理：拆除所有沒有在線玩家的房間
//
// 用於斷線通知丟失的情況，定期執行即可，不追求即時。
func (r *Registry) Cleanup() {
	r.mu.RLock()
	var toClose []string
	for code, room := range r.rooms {
		if !room.HasActivePlayers() {
			toClose = append(toClose, code)
		}
	}
	r.mu.RUnlock()

	for _, code := range toClose {
		r.closeRoom(code, "cleanup_sweep")
	}
}

// closeRoom 拆除房間（冪等，對已移除的房間是安全的 no-op）
//
// 先在鎖內摘除兩張映射的所有痕跡，再於鎖外觸發拆除掛鉤，
// 避免掛鉤回呼與註冊表鎖形成環。
//
// 反向索引按值清除：已登記索引但尚未入冊的加入者（加入流程的
// 兩步之間被拆除搶先）也一併釋放，不會留下指向已拆除房間的殘留索引。
func (r *Registry) closeRoom(code, reason string) {
	r.mu.Lock()

	if _, exists := r.rooms[code]; !exists {
		r.mu.Unlock()
		return
	}

	for id, c := range r.playerRoom {
		if c == code {
			delete(r.playerRoom, id)
		}
	}
	delete(r.rooms, code)
	onClosed := r.onRoomClosed
	r.mu.Unlock()

	if onClosed != nil {
		onClosed(code)
	}

	r.logger.Info("房間已拆除",
		"room_code", code,
		"reason", reason)
}

// cleanupLoop 定期清理迴圈
func (r *Registry) cleanupLoop(interval time.Duration) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Cleanup()
		case <-r.stopCh:
			return
		}
	}
}

// RoomCount 活躍房間數
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Stats 統計資訊
func (r *Registry) Stats() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statusCount := make(map[GameStatus]int)
	totalPlayers := 0
	for _, room := range r.rooms {
		statusCount[room.Engine().Status()]++
		totalPlayers += room.PlayerCount()
	}

	return map[string]any{
		"total_rooms":   len(r.rooms),
		"total_players": totalPlayers,
		"by_status":     statusCount,
	}
}

// Stop 停止註冊表
func (r *Registry) Stop() {
	close(r.stopCh)
	r.wg.Wait()
	r.logger.Info("房間註冊表已停止")
}

// roomCodeChars 房間碼字元集（排除易混淆字元 0/O、1/I）
const roomCodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// RoomCodeLength 房間碼長度
const RoomCodeLength = 6

// generateRoomCodeLocked 生成唯一房間碼
//
// 與既有房間碰撞時重新生成，絕不覆蓋。呼叫者需持有寫鎖。
func (r *Registry) generateRoomCodeLocked() string {
	for {
		code := randomCode(RoomCodeLength)
		if _, exists := r.rooms[code]; !exists {
			return code
		}
	}
}

// randomCode 生成隨機房間碼
func randomCode(length int) string {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		// 隨機源失敗時以時間戳位元組兜底
		now := time.Now().UnixNano()
		for i := range b {
			b[i] = byte(now >> (8 * (i % 8)))
		}
	}
	for i := range b {
		b[i] = roomCodeChars[int(b[i])%len(roomCodeChars)]
	}
	return string(b)
}
