package models

import (
	"time"

	"gorm.io/gorm"
)

// 联系人模型
type Contact struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	UserID     string         `gorm:"index;not null" json:"user_id"` // 所属用户（来自认证）
	Name       string         `gorm:"not null" json:"name"`
	Email      string         `gorm:"not null" json:"email"`
	Phone      string         `json:"phone"`
	Company    string         `json:"company"`
	Title      string         `json:"title"`
	Status     string         `gorm:"default:'lead'" json:"status"` // lead, contacted, proposal, negotiation, closed_won, closed_lost
	Source     string         `json:"source"`                       // website, referral, cold_call, linkedin, other
	Notes      string         `gorm:"type:text" json:"notes"`
	AssignedTo string         `json:"assigned_to"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`

	// 关联关系
	Tags         []Tag         `gorm:"many2many:contact_tags" json:"tags,omitempty"`
	ContactNotes []ContactNote `gorm:"foreignKey:ContactID" json:"contact_notes,omitempty"`
	Deals        []Deal        `gorm:"foreignKey:ContactID" json:"deals,omitempty"`
	Activities   []Activity    `gorm:"foreignKey:ContactID" json:"activities,omitempty"`
}

// 标签
type Tag struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Name  string `gorm:"unique;not null" json:"name"`
	Color string `gorm:"default:'blue'" json:"color"` // blue, red, green, purple, gold

	Contacts []Contact `gorm:"many2many:contact_tags" json:"contacts,omitempty"`
}

// 联系人备注
type ContactNote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ContactID uint      `gorm:"index;not null" json:"contact_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`

	Contact Contact `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
}

// 商机模型
type Deal struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	ContactID     uint           `gorm:"index;not null" json:"contact_id"`
	Title         string         `gorm:"not null" json:"title"`
	Value         float64        `gorm:"not null" json:"value"`
	Currency      string         `gorm:"default:'USD'" json:"currency"`
	Stage         string         `gorm:"default:'qualified'" json:"stage"` // qualified, proposal, negotiation, closed_won, closed_lost
	Probability   int            `gorm:"default:0" json:"probability"`     // 0-100
	ExpectedClose *time.Time     `json:"expected_close"`
	Notes         string         `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// 关联关系
	Contact    Contact    `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
	Activities []Activity `gorm:"foreignKey:DealID" json:"activities,omitempty"`
}

// 活动/跟进任务
type Activity struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ContactID   uint      `gorm:"index;not null" json:"contact_id"`
	DealID      *uint     `gorm:"index" json:"deal_id"`
	Type        string    `gorm:"not null" json:"type"` // call, email, meeting, note, task
	Subject     string    `gorm:"not null" json:"subject"`
	Description string    `gorm:"type:text" json:"description"`
	Date        time.Time `gorm:"index;not null" json:"date"` // 任务类型时即到期时间
	Completed   bool      `gorm:"default:false" json:"completed"`
	CreatedAt   time.Time `json:"created_at"`

	Contact Contact `gorm:"foreignKey:ContactID" json:"contact,omitempty"`
	Deal    *Deal   `gorm:"foreignKey:DealID" json:"deal,omitempty"`
}

// 公司情报分析
type CompanyIntel struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CompanyName  string    `gorm:"index;not null" json:"company_name"`
	AnalysisType string    `gorm:"not null" json:"analysis_type"` // swot, competitor, market
	Content      string    `gorm:"type:text" json:"content"`
	ModelUsed    string    `json:"model_used"`
	GeneratedAt  time.Time `json:"generated_at"`
	RequestedBy  string    `json:"requested_by"`
}

// 通知模型
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
	Title     string    `gorm:"not null" json:"title"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Type      string    `gorm:"not null" json:"type"` // task_due, deal_milestone, system
	Read      bool      `gorm:"default:false" json:"read"`
	Link      string    `json:"link"`
	CreatedAt time.Time `json:"created_at"`
}
