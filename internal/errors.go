package internal

import (
	"errors"
	"fmt"
)

// 錯誤碼定義
//
// 錯誤分類（對應處理策略）：
//   - 驗證錯誤（INVALID_INPUT）：負載格式/範圍錯誤，只回覆發送者，狀態不變
//   - 授權錯誤（UNAUTHORIZED）：非房主執行房主操作，只回覆發送者，狀態不變
//   - 未找到錯誤（NOT_FOUND）：房間/玩家已不存在，屬正常營運狀況，永不致命
//
// 過期引用（輸入指向已被重置移除的冰球）不屬於錯誤：靜默忽略，不回報。
const (
	// ErrCodeInvalidInput 無效輸入
	ErrCodeInvalidInput = "INVALID_INPUT"
	// ErrCodeUnauthorized 未授權
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeNotFound 資源未找到
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeRoomFull 房間已滿
	ErrCodeRoomFull = "ROOM_FULL"
	// ErrCodeAlreadyInRoom 玩家已在房間中
	ErrCodeAlreadyInRoom = "ALREADY_IN_ROOM"
	// ErrCodeKicked 被踢出房間
	ErrCodeKicked = "KICKED"
	// ErrCodeInternal 內部錯誤
	ErrCodeInternal = "INTERNAL_ERROR"
)

// AppError 應用程式錯誤
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Err     error  `json:"-"`
}

// Error 實現 error 介面
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 實現 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 實現 errors.Is
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError 創建新的應用程式錯誤
func NewError(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WithDetails 添加詳細資訊（返回副本，預定義錯誤保持不變）
func (e *AppError) WithDetails(details string) *AppError {
	out := *e
	out.Details = details
	return &out
}

// 預定義錯誤
var (
	// ErrRoomNotFound 房間不存在
	ErrRoomNotFound = NewError(ErrCodeNotFound, "room not found")

	// ErrPlayerNotInRoom 玩家不在任何房間中
	ErrPlayerNotInRoom = NewError(ErrCodeNotFound, "player is not in a room")

	// ErrPlayerNotFound 玩家不存在
	ErrPlayerNotFound = NewError(ErrCodeNotFound, "player not found")

	// ErrRoomFull 房間已滿
	ErrRoomFull = NewError(ErrCodeRoomFull, "room is full")

	// ErrAlreadyInRoom 玩家已在其他房間
	ErrAlreadyInRoom = NewError(ErrCodeAlreadyInRoom, "player is already in a room")

	// ErrUnauthorized 只有房主可以執行此操作
	ErrUnauthorized = NewError(ErrCodeUnauthorized, "only the host can perform this action")

	// ErrInvalidConfig 無效的遊戲配置
	ErrInvalidConfig = NewError(ErrCodeInvalidInput, "invalid game config")
)

// IsNotFound 檢查是否為未找到錯誤
func IsNotFound(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeNotFound
	}
	return false
}

// IsUnauthorized 檢查是否為授權錯誤
func IsUnauthorized(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == ErrCodeUnauthorized
	}
	return false
}

// ErrorCode 提取錯誤碼（非 AppError 一律視為內部錯誤）
func ErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}
