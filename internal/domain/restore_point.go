package domain

import "time"

// RestorePointAnalyzer 分析流程使用的恢复点名称
const RestorePointAnalyzer = "analyzer"

// RestorePoint 断点续传位置
type RestorePoint struct {
	Name      string    `gorm:"type:varchar(64);primaryKey" json:"name"`
	Position  int       `gorm:"not null;default:0" json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (RestorePoint) TableName() string {
	return "restore_points"
}
