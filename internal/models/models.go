package models

import (
	"github.com/shopspring/decimal"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
)

type CheckoutState string

const (
	StateInitiated     CheckoutState = "INITIATED"
	StateVisitRecorded CheckoutState = "VISIT_RECORDED"
	StateEvaluated     CheckoutState = "EVALUATED"
	StateRewardGranted CheckoutState = "REWARD_GRANTED"
	StateAwaitingSpin  CheckoutState = "AWAITING_SPIN"
	StateFinalized     CheckoutState = "FINALIZED"
)

type RewardEarned struct {
	Type               dbconnector.RewardType `json:"type"`
	RewardID           uint                   `json:"reward_id"`
	VisitID            uint                   `json:"visit_id"`
	UserRewardID       *uint                  `json:"user_reward_id,omitempty"`
	TierName           string                 `json:"tier_name"`
	DiscountPercentage *decimal.Decimal       `json:"discount_percentage,omitempty"`
	Message            string                 `json:"message"`
}

type CheckoutResult struct {
	Success      bool              `json:"success"`
	State        CheckoutState     `json:"state"`
	Message      string            `json:"message"`
	Visit        dbconnector.Visit `json:"visit"`
	User         dbconnector.User  `json:"user"`
	RewardEarned *RewardEarned     `json:"reward_earned,omitempty"`
	// Replayed is set when the response was rebuilt for a repeated
	// idempotency key instead of recording a new visit.
	Replayed bool `json:"replayed,omitempty"`
}

type SpinRequest struct {
	UserID   uint `json:"user_id"`
	RewardID uint `json:"reward_id"`
	VisitID  uint `json:"visit_id"`
}

type SpinResult struct {
	Success        bool                      `json:"success"`
	Message        string                    `json:"message"`
	SelectedOption dbconnector.SpinnerOption `json:"selected_option"`
	UserReward     dbconnector.UserReward    `json:"user_reward"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type UserRequest struct {
	Name        string  `json:"name"`
	PhoneNumber *string `json:"phone_number"`
	Email       *string `json:"email"`
	Address     string  `json:"address"`
}

type UserUpdateRequest struct {
	Name        *string `json:"name"`
	PhoneNumber *string `json:"phone_number"`
	Email       *string `json:"email"`
	Address     *string `json:"address"`
}

type TierRequest struct {
	Name             string `json:"name"`
	VisitRequirement int    `json:"visit_requirement"`
	Description      string `json:"description"`
	IsActive         *bool  `json:"is_active"`
}

type RewardRequest struct {
	TierID      uint                   `json:"tier_id"`
	Name        string                 `json:"name"`
	RewardType  dbconnector.RewardType `json:"reward_type"`
	Value       decimal.NullDecimal    `json:"value"`
	Description string                 `json:"description"`
	IsActive    *bool                  `json:"is_active"`
}

type SpinnerOptionRequest struct {
	Name        string                 `json:"name"`
	RewardType  dbconnector.RewardType `json:"reward_type"`
	Value       decimal.NullDecimal    `json:"value"`
	Probability *float64               `json:"probability"`
	Description string                 `json:"description"`
	IsActive    *bool                  `json:"is_active"`
}

type AppSettingsRequest struct {
	CafeName       *string `json:"cafe_name"`
	CafeTagline    *string `json:"cafe_tagline"`
	CafeLogoBase64 *string `json:"cafe_logo_base64"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string                `json:"access_token"`
	TokenType   string                `json:"token_type"`
	User        dbconnector.AdminUser `json:"user"`
}

type AdminUserRequest struct {
	Username string                `json:"username"`
	Email    string                `json:"email"`
	Password string                `json:"password"`
	Role     dbconnector.AdminRole `json:"role"`
	IsActive *bool                 `json:"is_active"`
}
