package db

import "time"

// NotificationRecord 表示 notification_records 表的完整结构
// 与业务表 notifications 分开，避免写回触发变更流
type NotificationRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Category  string    `json:"category"`
	Tag       string    `json:"tag"`
	Data      []byte    `json:"data"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
