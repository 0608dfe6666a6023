package model

// Calendar 日历表，对应 calendars
// 冲突检测只在同一日历内进行
type Calendar struct {
	CalendarID  string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"calendar_id"`
	OwnerID     string `gorm:"type:uuid;not null"                             json:"owner_id"`
	Name        string `gorm:"type:varchar(100);not null"                     json:"name"`
	Color       string `gorm:"type:varchar(20);not null;default:'#3a87ad'"    json:"color"`
	Description string `gorm:"type:varchar(500);not null;default:''"          json:"description"`
	VersionedModel
}

// TableName 指定表名
func (Calendar) TableName() string { return "calendars" }
