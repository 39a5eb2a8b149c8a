package dbconnector

import (
	"time"

	"github.com/shopspring/decimal"
)

// Money and percentage values go over the wire as JSON numbers.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

type RewardType string

const (
	RewardFreeCoffee RewardType = "free_coffee"
	RewardDiscount   RewardType = "discount"
	RewardSpinner    RewardType = "spinner"
)

// RewardStatus tracks how far reward handling for a visit has progressed.
type RewardStatus string

const (
	RewardStatusPending      RewardStatus = "PENDING"
	RewardStatusNone         RewardStatus = "NONE"
	RewardStatusGranted      RewardStatus = "GRANTED"
	RewardStatusAwaitingSpin RewardStatus = "AWAITING_SPIN"
	RewardStatusSpun         RewardStatus = "SPUN"
	RewardStatusFailed       RewardStatus = "FAILED"
)

// Settled reports whether the visit needs no further reward processing
// besides an optional spin.
func (s RewardStatus) Settled() bool {
	return s != RewardStatusPending && s != RewardStatusFailed
}

type User struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"not null;index"`
	PhoneNumber *string   `json:"phone_number,omitempty" gorm:"uniqueIndex"`
	Email       *string   `json:"email,omitempty" gorm:"uniqueIndex"`
	Address     string    `json:"address,omitempty"`
	VisitCount  int       `json:"visit_count" gorm:"not null;default:0"`
	CurrentTier int       `json:"current_tier" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"-"`
}

type Visit struct {
	ID              uint         `json:"id" gorm:"primaryKey"`
	UserID          uint         `json:"user_id" gorm:"not null;index;uniqueIndex:idx_visit_idempotency,priority:1"`
	VisitNumber     int          `json:"visit_number" gorm:"not null"`
	IdempotencyKey  *string      `json:"-" gorm:"uniqueIndex:idx_visit_idempotency,priority:2"`
	RewardStatus    RewardStatus `json:"reward_status" gorm:"not null;default:'PENDING';index"`
	PendingRewardID *uint        `json:"pending_reward_id,omitempty"`
	VisitDatetime   time.Time    `json:"visit_datetime" gorm:"not null"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"-"`
}

type Tier struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	Name             string    `json:"name" gorm:"uniqueIndex;not null"`
	VisitRequirement int       `json:"visit_requirement" gorm:"uniqueIndex;not null"`
	Description      string    `json:"description"`
	IsActive         bool      `json:"is_active" gorm:"not null"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"-"`
}

type Reward struct {
	ID             uint                `json:"id" gorm:"primaryKey"`
	TierID         uint                `json:"tier_id" gorm:"not null;index"`
	Tier           Tier                `json:"-" gorm:"constraint:OnDelete:RESTRICT"`
	Name           string              `json:"name" gorm:"not null"`
	RewardType     RewardType          `json:"reward_type" gorm:"not null"`
	Value          decimal.NullDecimal `json:"value" gorm:"type:numeric(10,2)"`
	Description    string              `json:"description"`
	IsActive       bool                `json:"is_active" gorm:"not null"`
	SpinnerOptions []SpinnerOption     `json:"spinner_options,omitempty" gorm:"constraint:OnDelete:RESTRICT"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"-"`
}

type SpinnerOption struct {
	ID          uint                `json:"id" gorm:"primaryKey"`
	RewardID    uint                `json:"reward_id" gorm:"not null;index"`
	Name        string              `json:"name" gorm:"not null"`
	RewardType  RewardType          `json:"reward_type" gorm:"not null"`
	Value       decimal.NullDecimal `json:"value" gorm:"type:numeric(10,2)"`
	Probability float64             `json:"probability" gorm:"not null"`
	Description string              `json:"description"`
	IsActive    bool                `json:"is_active" gorm:"not null"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"-"`
}

type UserReward struct {
	ID              uint                `json:"id" gorm:"primaryKey"`
	UserID          uint                `json:"user_id" gorm:"not null;uniqueIndex:idx_user_reward_visit,priority:1"`
	RewardID        uint                `json:"reward_id" gorm:"not null;uniqueIndex:idx_user_reward_visit,priority:2"`
	VisitID         uint                `json:"visit_id" gorm:"not null;uniqueIndex:idx_user_reward_visit,priority:3"`
	SpinnerOptionID *uint               `json:"spinner_option_id,omitempty"`
	RewardType      RewardType          `json:"reward_type" gorm:"not null"`
	Value           decimal.NullDecimal `json:"value" gorm:"type:numeric(10,2)"`
	IsUsed          bool                `json:"is_used" gorm:"not null;default:false"`
	UsedAt          *time.Time          `json:"used_at,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
}

type AdminRole string

const (
	RoleSuperAdmin AdminRole = "super-admin"
	RoleAdmin      AdminRole = "admin"
	RolePOS        AdminRole = "pos"
)

type AdminUser struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	Username       string    `json:"username" gorm:"uniqueIndex;not null"`
	Email          string    `json:"email" gorm:"uniqueIndex;not null"`
	HashedPassword string    `json:"-" gorm:"not null"`
	Role           AdminRole `json:"role" gorm:"not null;default:'admin'"`
	IsActive       bool      `json:"is_active" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"-"`
}

type AppSettings struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	CafeName       string    `json:"cafe_name" gorm:"not null"`
	CafeLogoBase64 *string   `json:"cafe_logo_base64,omitempty"`
	CafeTagline    string    `json:"cafe_tagline"`
	IsActive       bool      `json:"is_active" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
