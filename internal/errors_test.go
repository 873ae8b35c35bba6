package internal_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/koopa0/sling-hockey/internal"
	"github.com/stretchr/testify/assert"
)

// TestAppError 測試錯誤格式與比對語義
func TestAppError(t *testing.T) {
	err := internal.NewError(internal.ErrCodeRoomFull, "room is full")
	assert.Equal(t, "[ROOM_FULL] room is full", err.Error())

	// Is 以錯誤碼比對，包裝後仍可辨識
	wrapped := fmt.Errorf("join failed: %w", internal.ErrRoomFull)
	assert.ErrorIs(t, wrapped, internal.ErrRoomFull)
	assert.NotErrorIs(t, wrapped, internal.ErrRoomNotFound)
}

// TestAppError_WithDetails 附加細節返回副本，預定義錯誤不被污染
func TestAppError_WithDetails(t *testing.T) {
	detailed := internal.ErrInvalidConfig.WithDetails("maxPlayers out of range")

	assert.Equal(t, "maxPlayers out of range", detailed.Details)
	assert.Empty(t, internal.ErrInvalidConfig.Details)

	// 副本仍與原錯誤同碼
	assert.ErrorIs(t, detailed, internal.ErrInvalidConfig)
}

// TestErrorHelpers 測試分類輔助函式
func TestErrorHelpers(t *testing.T) {
	assert.True(t, internal.IsNotFound(internal.ErrRoomNotFound))
	assert.True(t, internal.IsNotFound(internal.ErrPlayerNotInRoom))
	assert.False(t, internal.IsNotFound(internal.ErrRoomFull))
	assert.False(t, internal.IsNotFound(errors.New("plain")))

	assert.True(t, internal.IsUnauthorized(internal.ErrUnauthorized))
	assert.False(t, internal.IsUnauthorized(internal.ErrRoomNotFound))

	assert.Equal(t, internal.ErrCodeNotFound, internal.ErrorCode(internal.ErrRoomNotFound))
	assert.Equal(t, internal.ErrCodeInternal, internal.ErrorCode(errors.New("plain")))
}
