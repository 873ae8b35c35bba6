package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// SnapshotRate 快照廣播頻率（Hz），獨立於 60 Hz 的物理子步頻率
const SnapshotRate = 20

// Sender 出站訊息發送能力
//
// 由 WebSocket Hub 實現；閘道層只依賴這個介面，
// 測試時以記錄訊息的 stub 取代。發送是 fire-and-forget，
// 慢消費者由傳輸層自行處置，不會阻塞模擬。
type Sender interface {
	Send(playerID string, data []byte)
}

// Gateway 會話閘道
//
// 邊界層：唯一允許因入站訊息而呼叫 Room/Engine 變更操作的元件，
// 也是唯一的廣播者。職責：
//   - 每個入站負載在使用前依結構契約驗證
//   - 授權：房間生命週期操作（開始/暫停/重置/分隊/踢人）限房主
//   - 每個活躍（playing）房間一个獨立的廣播計時器：
//     固定節奏呼叫 Engine.Update() 並向房間所有成員推送狀態
//   - 斷線視為隱式離開房間（含房主觸發的房間拆除與計時器取消）
//
// 計時器生命週期：Start 時啟動，Pause/Reset/對局結束/房間拆除時停止；
// 同一房間碼任何時刻至多一個計時器存在，啟動新計時器會先取消舊的
// （這本身是防錯措施，不是預期路徑）。取消已取消或不存在的計時器
// 是安全的 no-op。
type Gateway struct {
	registry *Registry
	sender   Sender
	logger   *slog.Logger

	mu               sync.Mutex
	tickers          map[string]chan struct{} // roomCode -> 計時器停止通道（單一持有者）
	snapshotInterval time.Duration
}

// NewGateway 創建會話閘道
func NewGateway(registry *Registry, sender Sender, logger *slog.Logger) *Gateway {
	g := &Gateway{
		registry:         registry,
		sender:           sender,
		logger:           logger,
		tickers:          make(map[string]chan struct{}),
		snapshotInterval: time.Second / SnapshotRate,
	}
	registry.SetOnRoomClosed(g.StopSnapshotLoop)
	return g
}

// HandleMessage 處理入站訊息
//
// 同一房間的指令相對該房間的 tick 嚴格按到達順序處理
// （引擎互斥鎖保證一次 tick 與一條指令不會部分交錯）。
func (g *Gateway) HandleMessage(playerID string, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.sendError(playerID, NewError(ErrCodeInvalidInput, "malformed message envelope"))
		return
	}

	switch env.Type {
	case MsgRoomCreate:
		g.handleCreateRoom(playerID, env.Payload)
	case MsgRoomJoin:
		g.handleJoinRoom(playerID, env.Payload)
	case MsgRoomLeave:
		g.handleLeaveRoom(playerID)
	case MsgGameStart:
		g.handleGameStart(playerID)
	case MsgGamePause:
		g.handleGamePause(playerID)
	case MsgGameReset:
		g.handleGameReset(playerID)
	case MsgInputSling:
		g.handleInputSling(playerID, env.Payload)
	case MsgChatSend:
		g.handleChatSend(playerID, env.Payload)
	case MsgAssignTeam:
		g.handleAssignTeam(playerID, env.Payload)
	case MsgKickPlayer:
		g.handleKickPlayer(playerID, env.Payload)
	default:
		g.sendError(playerID, NewError(ErrCodeInvalidInput, "unknown message type: "+env.Type))
	}
}

// HandleDisconnect 處理斷線：視為該玩家的隱式離開
//
// 房間查找失敗仍要走一次 LeaveRoom：索引指向已拆除房間的殘留項
// 在 LeaveRoom 內會被移除，玩家 ID 不會被卡死。
func (g *Gateway) HandleDisconnect(playerID string) {
	room, err := g.registry.GetRoomByPlayer(playerID)
	if err != nil {
		_ = g.registry.LeaveRoom(playerID)
		return
	}
	room.UpdatePlayerConnection(playerID, false)
	g.leave(playerID, room)
}

// handleCreateRoom 創建房間
func (g *Gateway) handleCreateRoom(playerID string, payload json.RawMessage) {
	var req CreateRoomRequest
	if err := decode(payload, &req); err != nil {
		g.sendError(playerID, err)
		return
	}

	room, err := g.registry.CreateRoom(playerID, req.HostName, req.HostPlays, req.Config)
	if err != nil {
		g.sendError(playerID, err)
		return
	}

	g.send(playerID, MsgRoomState, RoomStatePayload{Room: room.Snapshot()})
}

// handleJoinRoom 加入房間
func (g *Gateway) handleJoinRoom(playerID string, payload json.RawMessage) {
	var req JoinRoomRequest
	if err := decode(payload, &req); err != nil {
		g.sendError(playerID, err)
		return
	}

	room, err := g.registry.GetRoom(req.Code)
	if err != nil {
		g.sendError(playerID, err)
		return
	}

	// 先登記反向索引（含容量檢查），通過後才動名冊
	if err := g.registry.JoinRoom(req.Code, playerID); err != nil {
		g.sendError(playerID, err)
		return
	}

	role := req.Role
	if role == "" || role == RoleAdmin { // Admin 身份不可經由 join 取得
		role = RolePlayer
	}
	player := room.AddPlayer(playerID, req.Name, role, TeamNone)

	g.broadcastRoomState(room)
	g.emitEvent(room, EventPlayerJoined, map[string]any{"player": player})

	g.logger.Info("玩家加入房間",
		"room_code", room.Code,
		"player_id", playerID,
		"player_name", req.Name)
}

// handleLeaveRoom 主動離開房間
func (g *Gateway) handleLeaveRoom(playerID string) {
	room, err := g.registry.GetRoomByPlayer(playerID)
	if err != nil {
		// 不在任何房間：正常營運狀況，無需回報；殘留索引一併清除
		_ = g.registry.LeaveRoom(playerID)
		return
	}
	g.leave(playerID, room)
}

// leave 共用的離開流程（主動離開、斷線、被踢）
func (g *Gateway) leave(playerID string, room *Room) {
	player, _ := room.GetPlayer(playerID)
	code := room.Code

	if err := g.registry.LeaveRoom(playerID); err != nil {
		return
	}

	// 房間若仍存在（非房主離開且尚有在線玩家），通知剩餘成員
	remaining, err := g.registry.GetRoom(code)
	if err != nil {
		return
	}
	g.emitEvent(remaining, EventPlayerLeft, map[string]any{"player": player})
	g.broadcastRoomState(remaining)
}

// handleGameStart 開始對局（限房主）
func (g *Gateway) handleGameStart(playerID string) {
	room, err := g.authorizeHost(playerID)
	if err != nil {
		g.sendError(playerID, err)
		return
	}

	// 廣播計時器只配給真正進入 playing 的房間；
	// finished 之後的 game:start 是靜默 no-op（先重置才能再開）
	room.Engine().Start()
	if room.Engine().Status() != StatusPlaying {
		return
	}
	g.startSnapshotLoop(room.Code)
	g.broadcastRoomState(room)

	g.logger.Info("對局開始", "room_code", room.Code, "host_id", playerID)
}

// handleGamePause 暫停對局（限房主）
func (g *Gateway) handleGamePause(playerID string) {
	room, err := g.authorizeHost(playerID)
	if err != nil {
		g.sendError(playerID, err)
		return
	}

	room.Engine().Pause()
	g.StopSnapshotLoop(room.Code)
	g.broadcastRoomState(room)
}

// handleGameReset 重置對局（限房主）
func (g *Gateway) handleGameReset(playerID string) {
	room, err := g.authorizeHost(playerID)
	if err != nil {
		g.sendError(playerID, err)
		return
	}

	room.Engine().Reset()
	g.StopSnapshotLoop(room.Code)
	g.broadcastRoomState(room)
}

// handleInputSling 彈弓輸入
//
// 玩家已不屬於任何房間（被踢、房間已拆除）時靜默忽略；
// 指向已不存在冰球的過期輸入由引擎靜默丟棄。
func (g *Gateway) handleInputSling(playerID string, payload json.RawMessage) {
	var req SlingRequest
	if err := decode(payload, &req); err != nil {
		g.sendError(playerID, err)
		return
	}

	room, err := g.registry.GetRoomByPlayer(playerID)
	if err != nil {
		return
	}

	room.Engine().HandleInput(req.PuckID, req.PullVector)
}

// handleChatSend 聊天轉發
func (g *Gateway) handleChatSend(playerID string, payload json.RawMessage) {
	var req ChatRequest
	if err := decode(payload, &req); err != nil {
		g.sendError(playerID, err)
		return
	}

	room, err := g.registry.GetRoomByPlayer(playerID)
	if err != nil {
		return
	}
	player, ok := room.GetPlayer(playerID)
	if !ok {
		return
	}

	g.broadcastToRoom(room, MsgChat, ChatPayload{
		PlayerID:   player.ID,
		PlayerName: player.Name,
		Text:       req.Text,
		Timestamp:  nowMillis(),
	})
}

// handleAssignTeam 分配隊伍（限房主）
func (g *Gateway) handleAssignTeam(playerID string, payload json.RawMessage) {
	var req AssignTeamRequest
	if err := decode(payload, &req); err != nil {
		g.sendError(playerID, err)
		return
	}

	room, err := g.authorizeHost(playerID)
	if err != nil {
		g.sendError(playerID, err)
		return
	}

	if !room.UpdatePlayerTeam(req.PlayerID, req.Team) {
		g.sendError(playerID, ErrPlayerNotFound)
		return
	}
	g.broadcastRoomState(room)
}

// handleKickPlayer 踢出玩家（限房主）
func (g *Gateway) handleKickPlayer(playerID string, payload json.RawMessage) {
	var req KickPlayerRequest
	if err := decode(payload, &req); err != nil {
		g.sendError(playerID, err)
		return
	}

	room, err := g.authorizeHost(playerID)
	if err != nil {
		g.sendError(playerID, err)
		return
	}

	target, ok := room.GetPlayer(req.PlayerID)
	if !ok {
		g.sendError(playerID, ErrPlayerNotFound)
		return
	}

	// 先通知被踢者，再移除；之後該玩家的輸入因不再對應任何房間而被忽略
	g.send(target.ID, MsgError, ErrorPayload{
		Code:    ErrCodeKicked,
		Message: "you have been kicked from the room",
	})
	g.leave(target.ID, room)

	g.logger.Info("玩家被踢出",
		"room_code", room.Code,
		"player_id", target.ID,
		"host_id", playerID)
}

// authorizeHost 解析呼叫者所在房間並驗證房主身份
func (g *Gateway) authorizeHost(playerID string) (*Room, error) {
	room, err := g.registry.GetRoomByPlayer(playerID)
	if err != nil {
		return nil, err
	}
	if !room.IsHost(playerID) {
		return nil, ErrUnauthorized
	}
	return room, nil
}

// startSnapshotLoop 啟動房間的廣播計時器
//
// 同一房間碼至多一個計時器：已有舊計時器時先取消再啟動新的。
func (g *Gateway) startSnapshotLoop(code string) {
	g.mu.Lock()
	if old, ok := g.tickers[code]; ok {
		close(old)
		g.logger.Warn("房間已有廣播計時器，先取消舊的", "room_code", code)
	}
	stop := make(chan struct{})
	g.tickers[code] = stop
	g.mu.Unlock()

	go g.snapshotLoop(code, stop)
}

// StopSnapshotLoop 停止房間的廣播計時器
//
// 對已停止或不存在的計時器是安全的 no-op。
func (g *Gateway) StopSnapshotLoop(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if stop, ok := g.tickers[code]; ok {
		close(stop)
		delete(g.tickers, code)
	}
}

// stopLoopIfCurrent 計時器自行退出時的清理
//
// 以通道身份比對，避免誤關取代自己的新計時器。
func (g *Gateway) stopLoopIfCurrent(code string, stop chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if cur, ok := g.tickers[code]; ok && cur == stop {
		close(cur)
		delete(g.tickers, code)
	}
}

// snapshotLoop 房間的廣播迴圈
//
// 固定節奏（20 Hz）：推進模擬一次，向房間所有成員推送快照；
// 得分或對局結束時發出對應事件並自行停止。
func (g *Gateway) snapshotLoop(code string, stop chan struct{}) {
	ticker := time.NewTicker(g.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			room, err := g.registry.GetRoom(code)
			if err != nil {
				// 房間已拆除；拆除掛鉤通常已關閉本計時器，這裡是兜底
				g.stopLoopIfCurrent(code, stop)
				return
			}

			outcome := room.Engine().Update()
			g.broadcastToRoom(room, MsgGameSnapshot, GameSnapshotPayload{
				State:     outcome.State,
				Timestamp: outcome.SnapshotTime.UnixMilli(),
			})

			if len(outcome.Scored) > 0 {
				for _, team := range outcome.Scored {
					g.emitEvent(room, EventPuckScored, map[string]any{
						"team":  team,
						"score": outcome.State.Score,
					})
				}
				g.emitEvent(room, EventRoundEnd, map[string]any{"score": outcome.State.Score})
				g.broadcastRoomState(room)
				g.stopLoopIfCurrent(code, stop)
				return
			}

			if outcome.Finished {
				g.emitEvent(room, EventGameEnd, map[string]any{"state": outcome.State})
				g.broadcastRoomState(room)
				g.stopLoopIfCurrent(code, stop)
				return
			}
		}
	}
}

// Stop 停止閘道層（取消所有廣播計時器）
func (g *Gateway) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()

	for code, stop := range g.tickers {
		close(stop)
		delete(g.tickers, code)
	}
	g.logger.Info("會話閘道已停止")
}

// ---- 出站輔助 ----

// send 對單一連接發送訊息
func (g *Gateway) send(playerID, msgType string, payload any) {
	data, err := NewEnvelope(msgType, payload)
	if err != nil {
		g.logger.Error("序列化出站訊息失敗", "type", msgType, "error", err)
		return
	}
	g.sender.Send(playerID, data)
}

// sendError 對肇事連接回報錯誤（絕不廣播）
func (g *Gateway) sendError(playerID string, err error) {
	payload := ErrorPayload{Code: ErrorCode(err), Message: err.Error()}
	var appErr *AppError
	if errors.As(err, &appErr) {
		payload.Message = appErr.Message
		if appErr.Details != "" {
			payload.Message += ": " + appErr.Details
		}
	}
	g.send(playerID, MsgError, payload)
}

// broadcastToRoom 向房間所有成員推送（序列化一次，逐成員發送）
func (g *Gateway) broadcastToRoom(room *Room, msgType string, payload any) {
	data, err := NewEnvelope(msgType, payload)
	if err != nil {
		g.logger.Error("序列化廣播訊息失敗", "type", msgType, "error", err)
		return
	}
	for _, p := range room.Players() {
		g.sender.Send(p.ID, data)
	}
}

// broadcastRoomState 廣播房間狀態快照
func (g *Gateway) broadcastRoomState(room *Room) {
	g.broadcastToRoom(room, MsgRoomState, RoomStatePayload{Room: room.Snapshot()})
}

// emitEvent 廣播遊戲事件
func (g *Gateway) emitEvent(room *Room, eventType GameEventType, payload any) {
	g.broadcastToRoom(room, MsgGameEvent, GameEventPayload{
		Type:      eventType,
		Payload:   payload,
		Timestamp: nowMillis(),
	})
}

// decode 解碼並驗證入站負載
func decode[T interface{ Validate() error }](payload json.RawMessage, req T) error {
	if err := json.Unmarshal(payload, req); err != nil {
		return NewError(ErrCodeInvalidInput, "malformed payload")
	}
	return req.Validate()
}
