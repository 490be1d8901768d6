package models

import "time"

// AutomationRule 自动化规则定义
type AutomationRule struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"not null" json:"name"`
	TriggerType  string    `gorm:"index;not null" json:"trigger_type"` // deal_stage_change, deal_probability_threshold, contact_created, deal_created
	Condition    string    `gorm:"type:text" json:"condition"`         // JSON: {attr: expected, ...} 全部满足才触发
	ActionType   string    `gorm:"not null" json:"action_type"`        // create_notification, create_activity
	ActionConfig string    `gorm:"type:text" json:"action_config"`     // JSON: 动作参数
	Enabled      bool      `gorm:"default:true" json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AutomationRun 规则执行记录用于审计
type AutomationRun struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	RuleID    uint           `gorm:"index" json:"rule_id"`
	EntityID  uint           `gorm:"index" json:"entity_id"`
	Status    string         `gorm:"index" json:"status"` // executed, failed
	Message   string         `gorm:"type:text" json:"message"`
	CreatedAt time.Time      `json:"created_at"`
	Rule      AutomationRule `gorm:"foreignKey:RuleID" json:"rule,omitempty"`
}
