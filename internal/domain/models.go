// Package domain defines the persistence models for customers and the
// business history attached to them (orders, interactions, tasks), plus the
// staff users and the audit trail. These types are mapped with GORM and form
// the core data layer of the CRM backend.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Customer is a person or business the CRM tracks. The phone number is the
// natural key: it is globally unique and never reassigned to another row.
// Merging is the only operation that collapses two phone identities.
//
// Fields:
//   - Phone: Taiwan mobile number (09xxxxxxxx), primary key.
//   - Name: display name; indexed for duplicate detection.
//   - Email / LineID / FacebookURL / Region: optional contact attributes.
//   - Source: acquisition channel (manual, import, line, website, ...).
//   - Tags: free-form labels stored as a JSON array.
//   - MarketingConsent: whether the customer opted into marketing.
//   - Notes: free text; merges append with a "\n---\n" delimiter.
//
// There is no soft delete: a merged-away phone must stop resolving.
type Customer struct {
	Phone            string                      `json:"phone"                  gorm:"type:varchar(20);primaryKey"`
	Name             string                      `json:"name"                   gorm:"type:varchar(100);not null;index:idx_customers_name"`
	Email            *string                     `json:"email,omitempty"        gorm:"type:varchar(255)"`
	LineID           *string                     `json:"line_id,omitempty"      gorm:"type:varchar(64)"`
	FacebookURL      *string                     `json:"facebook_url,omitempty" gorm:"type:varchar(512)"`
	Source           string                      `json:"source"                 gorm:"type:varchar(32);not null;default:'manual'"`
	Tags             datatypes.JSONSlice[string] `json:"tags"                   gorm:"not null;default:'[]'"`
	Region           *string                     `json:"region,omitempty"       gorm:"type:varchar(32);index"`
	MarketingConsent bool                        `json:"marketing_consent"      gorm:"not null;default:false"`
	Notes            string                      `json:"notes"                  gorm:"type:text;not null;default:''"`
	CreatedAt        time.Time                   `json:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at"`
}

// TableName returns the database table name for Customer.
func (Customer) TableName() string { return "customers" }

// HasEmail reports whether the customer carries a non-empty e-mail address.
func (c *Customer) HasEmail() bool { return c.Email != nil && *c.Email != "" }

// User is a staff member who logs interactions and owns tasks.
type User struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	Name      string    `json:"name"       gorm:"type:varchar(100);not null"`
	Email     string    `json:"email"      gorm:"type:varchar(255);not null;uniqueIndex"`
	Role      string    `json:"role"       gorm:"type:varchar(16);not null;default:'sales';check:role IN ('admin','sales','support')"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Order statuses.
const (
	OrderPending   = "PENDING"
	OrderPaid      = "PAID"
	OrderShipped   = "SHIPPED"
	OrderCompleted = "COMPLETED"
	OrderCancelled = "CANCELLED"
)

// Order is a purchase placed by a customer. Orders outlive customer record
// changes: deleting a customer is restricted while orders reference it, and a
// merge re-points orders to the surviving phone instead of deleting them.
type Order struct {
	ID            string          `json:"id"             gorm:"type:char(36);primaryKey"`
	OrderNumber   string          `json:"order_number"   gorm:"type:varchar(32);not null;uniqueIndex"`
	CustomerPhone string          `json:"customer_phone" gorm:"type:varchar(20);not null;index"`
	Amount        decimal.Decimal `json:"amount"         gorm:"type:decimal(12,2);not null"`
	Status        string          `json:"status"         gorm:"type:varchar(16);not null;default:'PENDING'"`
	Note          string          `json:"note"           gorm:"type:text;not null;default:''"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Customer is the owning customer. Deletes are restricted so history is
	// never silently dropped.
	Customer *Customer `json:"-" gorm:"foreignKey:CustomerPhone;references:Phone;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string { return "orders" }

// Interaction is a logged contact event between a staff member and a customer.
type Interaction struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	CustomerPhone string    `json:"customer_phone" gorm:"type:varchar(20);not null;index:idx_interactions_customer,priority:1"`
	UserID        string    `json:"user_id"        gorm:"type:char(36);not null;index"`
	Channel       string    `json:"channel"        gorm:"type:varchar(16);not null;check:channel IN ('phone','line','email','visit','facebook','other')"`
	Summary       string    `json:"summary"        gorm:"type:varchar(255);not null"`
	Notes         string    `json:"notes"          gorm:"type:text;not null;default:''"`
	OccurredAt    time.Time `json:"occurred_at"    gorm:"not null;index:idx_interactions_customer,priority:2"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Customer *Customer `json:"-" gorm:"foreignKey:CustomerPhone;references:Phone;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	User     *User     `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Interaction.
func (Interaction) TableName() string { return "interactions" }

// Task is a follow-up or reminder work item tied to a customer and optionally
// to one of the customer's orders. See CanTransition for the status lifecycle.
type Task struct {
	ID            string     `json:"id"                    gorm:"type:char(36);primaryKey"`
	CustomerPhone string     `json:"customer_phone"        gorm:"type:varchar(20);not null;index"`
	OrderID       *string    `json:"order_id,omitempty"    gorm:"type:char(36);index"`
	AssigneeID    *string    `json:"assignee_id,omitempty" gorm:"type:char(36);index"`
	Title         string     `json:"title"                 gorm:"type:varchar(255);not null"`
	Type          string     `json:"type"                  gorm:"type:varchar(16);not null;default:'FOLLOW_UP'"`
	Priority      string     `json:"priority"              gorm:"type:varchar(16);not null;default:'MEDIUM'"`
	Status        string     `json:"status"                gorm:"type:varchar(16);not null;default:'PENDING';index:idx_tasks_status_due,priority:1"`
	DueAt         time.Time  `json:"due_at"                gorm:"not null;index:idx_tasks_status_due,priority:2"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Customer *Customer `json:"-" gorm:"foreignKey:CustomerPhone;references:Phone;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	Order    *Order    `json:"-" gorm:"foreignKey:OrderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
	Assignee *User     `json:"-" gorm:"foreignKey:AssigneeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

// TableName returns the database table name for Task.
func (Task) TableName() string { return "tasks" }

// Audit outcomes.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

// AuditLog is one append-only record of a business-significant action.
type AuditLog struct {
	ID           string         `json:"id"                      gorm:"type:char(36);primaryKey"`
	RequestID    string         `json:"request_id"              gorm:"type:varchar(64);not null;default:'';index"`
	UserID       string         `json:"user_id"                 gorm:"type:varchar(64);not null;default:'';index"`
	UserIP       string         `json:"user_ip"                 gorm:"type:varchar(64);not null;default:''"`
	Action       string         `json:"action"                  gorm:"type:varchar(64);not null;index:idx_audit_entity,priority:1"`
	Entity       string         `json:"entity"                  gorm:"type:varchar(32);not null;index:idx_audit_entity,priority:2"`
	EntityID     string         `json:"entity_id"               gorm:"type:varchar(64);not null;index:idx_audit_entity,priority:3"`
	Changes      datatypes.JSON `json:"changes"                 gorm:"not null"`
	Status       string         `json:"status"                  gorm:"type:varchar(16);not null;check:status IN ('success','failure')"`
	ErrorMessage string         `json:"error_message,omitempty" gorm:"type:text;not null;default:''"`
	LatencyMs    int64          `json:"latency_ms"              gorm:"not null;default:0"`
	Timestamp    time.Time      `json:"timestamp"               gorm:"not null;index"`
}

// TableName returns the database table name for AuditLog.
func (AuditLog) TableName() string { return "audit_logs" }
