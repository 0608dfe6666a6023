package dto

// ── 日历模块 DTO ──

// CreateCalendarRequest 创建日历请求
type CreateCalendarRequest struct {
	Name        string `json:"name"        binding:"required,min=1,max=100"`
	Color       string `json:"color"       binding:"omitempty,hexcolor"`
	Description string `json:"description" binding:"max=500"`
}

// CalendarResponse 日历信息响应
type CalendarResponse struct {
	ID          string `json:"id"`
	OwnerID     string `json:"owner_id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}
