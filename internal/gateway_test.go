package internal_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/koopa0/sling-hockey/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSender 記錄所有出站訊息的傳輸層替身
type stubSender struct {
	mu   sync.Mutex
	msgs map[string][]internal.Envelope
}

func newStubSender() *stubSender {
	return &stubSender{msgs: make(map[string][]internal.Envelope)}
}

func (s *stubSender) Send(playerID string, data []byte) {
	var env internal.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[playerID] = append(s.msgs[playerID], env)
}

// byType 取出發給指定玩家的特定類型訊息
func (s *stubSender) byType(playerID, msgType string) []internal.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []internal.Envelope
	for _, env := range s.msgs[playerID] {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

func (s *stubSender) count(playerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs[playerID])
}

// lastError 取出發給指定玩家的最後一條錯誤
func (s *stubSender) lastError(t *testing.T, playerID string) internal.ErrorPayload {
	t.Helper()
	errs := s.byType(playerID, internal.MsgError)
	require.NotEmpty(t, errs, "no error sent to %s", playerID)

	var payload internal.ErrorPayload
	require.NoError(t, json.Unmarshal(errs[len(errs)-1].Payload, &payload))
	return payload
}

func newTestGateway() (*internal.Gateway, *internal.Registry, *stubSender) {
	registry := internal.NewRegistry(discardLogger(), internal.DefaultGameConfig(), 0)
	sender := newStubSender()
	gw := internal.NewGateway(registry, sender, discardLogger())
	return gw, registry, sender
}

// sendMsg 以信封格式送入一條訊息
func sendMsg(t *testing.T, gw *internal.Gateway, playerID, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	data, err := json.Marshal(internal.Envelope{Type: msgType, Payload: raw})
	require.NoError(t, err)
	gw.HandleMessage(playerID, data)
}

// createRoom 創建房間並返回房間碼
func createRoom(t *testing.T, gw *internal.Gateway, sender *stubSender, hostID, hostName string) string {
	t.Helper()
	sendMsg(t, gw, hostID, internal.MsgRoomCreate, internal.CreateRoomRequest{HostName: hostName})

	states := sender.byType(hostID, internal.MsgRoomState)
	require.NotEmpty(t, states, "host did not receive room state")

	var payload internal.RoomStatePayload
	require.NoError(t, json.Unmarshal(states[len(states)-1].Payload, &payload))
	return payload.Room.Code
}

// joinRoom 以玩家身份加入房間
func joinRoom(t *testing.T, gw *internal.Gateway, playerID, name, code string) {
	t.Helper()
	sendMsg(t, gw, playerID, internal.MsgRoomJoin, internal.JoinRoomRequest{Code: code, Name: name})
}

// TestGateway_CreateRoom 測試創建房間的回覆
func TestGateway_CreateRoom(t *testing.T) {
	gw, registry, sender := newTestGateway()

	code := createRoom(t, gw, sender, "host-1", "房主")
	assert.Len(t, code, internal.RoomCodeLength)

	room, err := registry.GetRoom(code)
	require.NoError(t, err)
	assert.Equal(t, "host-1", room.HostID)

	host, ok := room.GetPlayer("host-1")
	require.True(t, ok)
	assert.Equal(t, internal.RoleAdmin, host.Role)
}

// TestGateway_CreateRoom_Invalid 無效負載只回錯誤，狀態不變
func TestGateway_CreateRoom_Invalid(t *testing.T) {
	gw, registry, sender := newTestGateway()

	sendMsg(t, gw, "host-1", internal.MsgRoomCreate, internal.CreateRoomRequest{HostName: ""})

	assert.Equal(t, internal.ErrCodeInvalidInput, sender.lastError(t, "host-1").Code)
	assert.Equal(t, 0, registry.RoomCount())
}

// TestGateway_JoinRoom 測試加入房間與廣播
func TestGateway_JoinRoom(t *testing.T) {
	gw, registry, sender := newTestGateway()
	code := createRoom(t, gw, sender, "host-1", "房主")

	joinRoom(t, gw, "g1", "訪客", code)

	// 雙方都收到更新後的房間狀態
	require.NotEmpty(t, sender.byType("g1", internal.MsgRoomState))
	assert.GreaterOrEqual(t, len(sender.byType("host-1", internal.MsgRoomState)), 2)

	// player_joined 事件廣播給房內所有人
	events := sender.byType("host-1", internal.MsgGameEvent)
	require.NotEmpty(t, events)
	var event internal.GameEventPayload
	require.NoError(t, json.Unmarshal(events[len(events)-1].Payload, &event))
	assert.Equal(t, internal.EventPlayerJoined, event.Type)

	room, err := registry.GetRoomByPlayer("g1")
	require.NoError(t, err)
	got, ok := room.GetPlayer("g1")
	require.True(t, ok)
	assert.Equal(t, internal.RolePlayer, got.Role)
	assert.Equal(t, internal.TeamNone, got.Team)
}

// TestGateway_JoinRoom_Rejections 測試加入的各種拒絕
func TestGateway_JoinRoom_Rejections(t *testing.T) {
	gw, _, sender := newTestGateway()
	createRoom(t, gw, sender, "host-1", "房主")

	// 格式錯誤的房間碼
	joinRoom(t, gw, "g1", "訪客", "BAD")
	assert.Equal(t, internal.ErrCodeInvalidInput, sender.lastError(t, "g1").Code)

	// 格式正確但不存在
	joinRoom(t, gw, "g1", "訪客", "ZZZZZZ")
	assert.Equal(t, internal.ErrCodeNotFound, sender.lastError(t, "g1").Code)
}

// TestGateway_JoinRoom_AdminCoerced 經由 join 不可能取得 Admin 身份
func TestGateway_JoinRoom_AdminCoerced(t *testing.T) {
	gw, registry, sender := newTestGateway()
	code := createRoom(t, gw, sender, "host-1", "房主")

	sendMsg(t, gw, "g1", internal.MsgRoomJoin, internal.JoinRoomRequest{
		Code: code,
		Name: "訪客",
		Role: internal.RoleAdmin,
	})

	room, err := registry.GetRoomByPlayer("g1")
	require.NoError(t, err)
	got, _ := room.GetPlayer("g1")
	assert.Equal(t, internal.RolePlayer, got.Role)
}

// TestGateway_HostOnlyOperations 生命週期操作限房主
func TestGateway_HostOnlyOperations(t *testing.T) {
	gw, registry, sender := newTestGateway()
	code := createRoom(t, gw, sender, "host-1", "房主")
	joinRoom(t, gw, "g1", "訪客", code)

	room, err := registry.GetRoom(code)
	require.NoError(t, err)

	for _, msgType := range []string{internal.MsgGameStart, internal.MsgGamePause, internal.MsgGameReset} {
		sendMsg(t, gw, "g1", msgType, nil)
		assert.Equal(t, internal.ErrCodeUnauthorized, sender.lastError(t, "g1").Code, "type %s", msgType)
	}
	sendMsg(t, gw, "g1", internal.MsgAssignTeam, internal.AssignTeamRequest{PlayerID: "g1", Team: internal.TeamRed})
	assert.Equal(t, internal.ErrCodeUnauthorized, sender.lastError(t, "g1").Code)

	sendMsg(t, gw, "g1", internal.MsgKickPlayer, internal.KickPlayerRequest{PlayerID: "host-1"})
	assert.Equal(t, internal.ErrCodeUnauthorized, sender.lastError(t, "g1").Code)

	// 引擎狀態未被未授權操作改動
	assert.Equal(t, internal.StatusWaiting, room.Engine().Status())
}

// TestGateway_GameLifecycle 房主驅動開始/暫停/重置
func TestGateway_GameLifecycle(t *testing.T) {
	gw, registry, sender := newTestGateway()
	defer gw.Stop()

	code := createRoom(t, gw, sender, "host-1", "房主")
	room, err := registry.GetRoom(code)
	require.NoError(t, err)

	sendMsg(t, gw, "host-1", internal.MsgGameStart, nil)
	assert.Equal(t, internal.StatusPlaying, room.Engine().Status())
	assert.Equal(t, 1, room.Engine().Snapshot().CurrentRound)

	sendMsg(t, gw, "host-1", internal.MsgGamePause, nil)
	assert.Equal(t, internal.StatusPaused, room.Engine().Status())

	// 從暫停再開始不增加回合數
	sendMsg(t, gw, "host-1", internal.MsgGameStart, nil)
	assert.Equal(t, internal.StatusPlaying, room.Engine().Status())
	assert.Equal(t, 1, room.Engine().Snapshot().CurrentRound)

	sendMsg(t, gw, "host-1", internal.MsgGameReset, nil)
	state := room.Engine().Snapshot()
	assert.Equal(t, internal.StatusWaiting, state.Status)
	assert.Equal(t, 0, state.CurrentRound)
}

// TestGateway_SnapshotBroadcast 活躍房間以固定節奏向所有成員推送快照
func TestGateway_SnapshotBroadcast(t *testing.T) {
	gw, _, sender := newTestGateway()
	defer gw.Stop()

	code := createRoom(t, gw, sender, "host-1", "房主")
	joinRoom(t, gw, "g1", "訪客", code)

	sendMsg(t, gw, "host-1", internal.MsgGameStart, nil)
	time.Sleep(130 * time.Millisecond)
	sendMsg(t, gw, "host-1", internal.MsgGamePause, nil)

	// 20 Hz 下 130ms 至少兩個 tick
	assert.GreaterOrEqual(t, len(sender.byType("host-1", internal.MsgGameSnapshot)), 2)
	assert.GreaterOrEqual(t, len(sender.byType("g1", internal.MsgGameSnapshot)), 2)
}

// TestGateway_Sling 彈弓輸入進入引擎；不在房間的輸入靜默忽略
func TestGateway_Sling(t *testing.T) {
	gw, registry, sender := newTestGateway()
	code := createRoom(t, gw, sender, "host-1", "房主")

	room, err := registry.GetRoom(code)
	require.NoError(t, err)
	puck := room.Engine().Snapshot().Pucks[0]

	sendMsg(t, gw, "host-1", internal.MsgInputSling, internal.SlingRequest{
		PuckID:     puck.ID,
		PullVector: internal.Vector2D{X: 50, Y: 0},
	})

	// 衝量已施加到物理世界，下一次更新可見
	room.Engine().Start()
	outcome := room.Engine().Update()
	moved := findPuck(t, outcome.State, puck.ID)
	assert.Negative(t, moved.Velocity.X)

	// 不在任何房間的玩家輸入：靜默，不回錯誤
	before := sender.count("stranger")
	sendMsg(t, gw, "stranger", internal.MsgInputSling, internal.SlingRequest{
		PuckID:     puck.ID,
		PullVector: internal.Vector2D{X: 50, Y: 0},
	})
	assert.Equal(t, before, sender.count("stranger"))
}

// TestGateway_Chat 聊天轉發給房內所有人
func TestGateway_Chat(t *testing.T) {
	gw, _, sender := newTestGateway()
	code := createRoom(t, gw, sender, "host-1", "房主")
	joinRoom(t, gw, "g1", "訪客", code)

	sendMsg(t, gw, "g1", internal.MsgChatSend, internal.ChatRequest{Text: "大家好"})

	for _, id := range []string{"host-1", "g1"} {
		chats := sender.byType(id, internal.MsgChat)
		require.Len(t, chats, 1, "player %s", id)

		var payload internal.ChatPayload
		require.NoError(t, json.Unmarshal(chats[0].Payload, &payload))
		assert.Equal(t, "大家好", payload.Text)
		assert.Equal(t, "g1", payload.PlayerID)
		assert.Equal(t, "訪客", payload.PlayerName)
	}

	// 空訊息拒絕
	sendMsg(t, gw, "g1", internal.MsgChatSend, internal.ChatRequest{Text: ""})
	assert.Equal(t, internal.ErrCodeInvalidInput, sender.lastError(t, "g1").Code)
}

// TestGateway_AssignTeam 房主分隊
func TestGateway_AssignTeam(t *testing.T) {
	gw, registry, sender := newTestGateway()
	code := createRoom(t, gw, sender, "host-1", "房主")
	joinRoom(t, gw, "g1", "訪客", code)

	sendMsg(t, gw, "host-1", internal.MsgAssignTeam, internal.AssignTeamRequest{
		PlayerID: "g1",
		Team:     internal.TeamRed,
	})

	room, err := registry.GetRoom(code)
	require.NoError(t, err)
	got, _ := room.GetPlayer("g1")
	assert.Equal(t, internal.TeamRed, got.Team)

	// 目標不存在
	sendMsg(t, gw, "host-1", internal.MsgAssignTeam, internal.AssignTeamRequest{
		PlayerID: "ghost",
		Team:     internal.TeamBlue,
	})
	assert.Equal(t, internal.ErrCodeNotFound, sender.lastError(t, "host-1").Code)
}

// TestGateway_Kick 踢人：被踢者收到通知、立即失去房間身份
func TestGateway_Kick(t *testing.T) {
	gw, registry, sender := newTestGateway()
	code := createRoom(t, gw, sender, "host-1", "房主")
	joinRoom(t, gw, "g1", "訪客", code)

	sendMsg(t, gw, "host-1", internal.MsgKickPlayer, internal.KickPlayerRequest{PlayerID: "g1"})

	assert.Equal(t, internal.ErrCodeKicked, sender.lastError(t, "g1").Code)
	_, err := registry.GetRoomByPlayer("g1")
	assert.ErrorIs(t, err, internal.ErrPlayerNotInRoom)

	// 房間仍在，房主仍在冊
	room, err := registry.GetRoom(code)
	require.NoError(t, err)
	assert.Equal(t, 1, room.PlayerCount())

	// 被踢者的後續輸入被靜默忽略
	puck := room.Engine().Snapshot().Pucks[0]
	before := sender.count("g1")
	sendMsg(t, gw, "g1", internal.MsgInputSling, internal.SlingRequest{
		PuckID:     puck.ID,
		PullVector: internal.Vector2D{X: 10, Y: 0},
	})
	assert.Equal(t, before, sender.count("g1"))
}

// TestGateway_LeaveRoom 主動離開與事件廣播
func TestGateway_LeaveRoom(t *testing.T) {
	gw, registry, sender := newTestGateway()
	code := createRoom(t, gw, sender, "host-1", "房主")
	joinRoom(t, gw, "g1", "訪客", code)

	sendMsg(t, gw, "g1", internal.MsgRoomLeave, nil)

	_, err := registry.GetRoomByPlayer("g1")
	assert.ErrorIs(t, err, internal.ErrPlayerNotInRoom)

	// 剩餘成員收到 player_left
	events := sender.byType("host-1", internal.MsgGameEvent)
	require.NotEmpty(t, events)
	var event internal.GameEventPayload
	require.NoError(t, json.Unmarshal(events[len(events)-1].Payload, &event))
	assert.Equal(t, internal.EventPlayerLeft, event.Type)

	// 不在房間時離開：靜默 no-op
	before := sender.count("g1")
	sendMsg(t, gw, "g1", internal.MsgRoomLeave, nil)
	assert.Equal(t, before, sender.count("g1"))
}

// TestGateway_Disconnect 斷線視為隱式離開；房主斷線即拆除房間
func TestGateway_Disconnect(t *testing.T) {
	gw, registry, sender := newTestGateway()
	code := createRoom(t, gw, sender, "host-1", "房主")
	joinRoom(t, gw, "g1", "訪客", code)

	gw.HandleDisconnect("host-1")

	assert.Equal(t, 0, registry.RoomCount())
	_, err := registry.GetRoomByPlayer("g1")
	assert.ErrorIs(t, err, internal.ErrPlayerNotInRoom)
}

// TestGateway_MalformedMessages 壞訊息只回錯誤
func TestGateway_MalformedMessages(t *testing.T) {
	gw, _, sender := newTestGateway()

	gw.HandleMessage("p1", []byte("not json at all"))
	assert.Equal(t, internal.ErrCodeInvalidInput, sender.lastError(t, "p1").Code)

	sendMsg(t, gw, "p1", "bogus:type", nil)
	assert.Equal(t, internal.ErrCodeInvalidInput, sender.lastError(t, "p1").Code)
}
