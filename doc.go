// Package slinghockey 提供一個權威式實時多人遊戲會話服務器。
//
// 實現了一個多房間的彈弓冰球（sling hockey）服務器：每個房間運行一個
// 固定頻率的確定性 2D 物理模擬，接受玩家操作、判定得分，並持續向
// 房間內所有客戶端廣播權威狀態。
//
// 房間管理系統
//
// 提供完整的房間生命週期管理：
//   - 房間創建（唯一房間碼，碰撞重試）與級聯拆除
//   - 玩家加入、離開、斷線即隱式離開
//   - 玩家 → 房間 1:1 反向索引
//   - 兜底清理掃描回收被遺棄的房間
//
// 權威模擬
//
// 每個房間獨佔一個模擬引擎：
//   - 固定 60 Hz 物理子步（與牆鐘抖動解耦，數值穩定）
//   - 自定義阻力與速度上限（等比例縮放保方向）
//   - 彈弓機制：拉回放開，衝量與拉動距離成正比、方向相反
//   - 半場清空判定得分，得分即暫停展示
//
// 廣播協定
//
// 狀態同步採用 tick 驅動的推送：
//   - 每個 playing 房間一個獨立的 20 Hz 廣播計時器
//   - 快照為深拷貝，已發送內容不受後續修改影響
//   - 錯誤只回覆肇事連接，絕不廣播
//
// 併發安全設計
//
// 採用了多層次的併發控制策略：
//   - 註冊表兩張共享映射由 RWMutex 守護，變動只經文件化操作
//   - 同一房間的 tick 與指令由引擎互斥鎖嚴格序列化
//   - 計時器單一持有者：房間碼 → 停止通道，先取消再創建
//
// 架構設計
//
// 系統採用分層架構設計：
//   - Hub 層：WebSocket 連接管理與心跳
//   - Gateway 層：驗證、授權、廣播計時器
//   - Registry 層：房間目錄與反向索引
//   - Room / Engine 層：名冊與權威模擬
//
// 配置選項
//
// 支援多種運行時配置：
//   - -config：YAML 配置檔路徑
//   - -port：服務監聽端口（預設 8080）
//   - -log-level：日誌級別（debug/info/warn/error）
//   - -log-format：日誌格式（text/json）
package slinghockey
