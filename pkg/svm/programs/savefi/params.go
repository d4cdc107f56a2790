package savefi

import (
	"fmt"

	"github.com/fortiblox/savefi/pkg/types"
)

// ProgramID is the address the savings-vault program is deployed at.
var ProgramID = types.MustPubkeyFromBase58("6ttMWaSxYvukX3dYJwuGCp7eaHWL6Fw28ZRhsULWMPp9")

// Seconds per time unit used by the program's clock arithmetic.
const (
	SecondsPerHour int64 = 60 * 60
	SecondsPerDay  int64 = 24 * SecondsPerHour
)

// DayWindow selects how the daily delegation counters reset.
type DayWindow string

const (
	// DayWindowCalendar resets counters at each UTC day boundary.
	DayWindowCalendar DayWindow = "calendar"
	// DayWindowRolling resets counters once 24h have passed since the
	// window was opened.
	DayWindowRolling DayWindow = "rolling"
)

// TradeGating selects how process_trade relates to delegation.
type TradeGating string

const (
	// TradeGatingPerTrade treats every trade amount as a delegation grant.
	TradeGatingPerTrade TradeGating = "per_trade"
	// TradeGatingAllowance draws trades down from an allowance granted by
	// delegate_funds.
	TradeGatingAllowance TradeGating = "allowance"
)

// Params holds every platform constant. Both the program and the client SDK
// read them from here.
type Params struct {
	MinSaveRate uint8 `json:"minSaveRate" yaml:"min_save_rate"`
	MaxSaveRate uint8 `json:"maxSaveRate" yaml:"max_save_rate"`
	MinLockDays uint8 `json:"minLockDays" yaml:"min_lock_days"`
	MaxLockDays uint8 `json:"maxLockDays" yaml:"max_lock_days"`
	MinFeeRate  uint8 `json:"minFeeRate" yaml:"min_fee_rate"`
	MaxFeeRate  uint8 `json:"maxFeeRate" yaml:"max_fee_rate"`

	// Delegation amounts in lamports.
	MinDelegation           uint64 `json:"minDelegation" yaml:"min_delegation"`
	MaxDelegation           uint64 `json:"maxDelegation" yaml:"max_delegation"`
	DailyLimit              uint64 `json:"dailyLimit" yaml:"daily_limit"`
	DelegationCooldownHours uint8  `json:"delegationCooldownHours" yaml:"delegation_cooldown_hours"`
	MaxTransactionsPerDay   uint32 `json:"maxTransactionsPerDay" yaml:"max_transactions_per_day"`

	SubscriptionFee        uint64 `json:"subscriptionFee" yaml:"subscription_fee"`
	SubscriptionPeriodDays uint8  `json:"subscriptionPeriodDays" yaml:"subscription_period_days"`

	EmergencyPenaltyRate       uint8 `json:"emergencyPenaltyRate" yaml:"emergency_penalty_rate"`
	FeeCollectionCooldownHours uint8 `json:"feeCollectionCooldownHours" yaml:"fee_collection_cooldown_hours"`
	ReceiptDecimals            uint8 `json:"receiptDecimals" yaml:"receipt_decimals"`

	DayWindow   DayWindow   `json:"dayWindow" yaml:"day_window"`
	TradeGating TradeGating `json:"tradeGating" yaml:"trade_gating"`

	// Admin, when set, is the only key allowed to run initialize_mints.
	// When zero the first caller becomes the admin.
	Admin types.Pubkey `json:"admin" yaml:"admin"`
}

// DefaultParams returns the production platform constants.
func DefaultParams() Params {
	return Params{
		MinSaveRate: 1,
		MaxSaveRate: 20,
		MinLockDays: 1,
		MaxLockDays: 30,
		MinFeeRate:  0,
		MaxFeeRate:  5,

		MinDelegation:           1_000_000,
		MaxDelegation:           5_000_000_000,
		DailyLimit:              50_000_000_000,
		DelegationCooldownHours: 1,
		MaxTransactionsPerDay:   100,

		SubscriptionFee:        250_000_000,
		SubscriptionPeriodDays: 7,

		EmergencyPenaltyRate:       5,
		FeeCollectionCooldownHours: 24,
		ReceiptDecimals:            9,

		DayWindow:   DayWindowCalendar,
		TradeGating: TradeGatingPerTrade,
	}
}

// Validate checks that the parameters are internally consistent.
func (p Params) Validate() error {
	switch {
	case p.MinSaveRate == 0 || p.MinSaveRate > p.MaxSaveRate || p.MaxSaveRate > 100:
		return fmt.Errorf("save rate bounds [%d,%d] invalid", p.MinSaveRate, p.MaxSaveRate)
	case p.MinLockDays == 0 || p.MinLockDays > p.MaxLockDays:
		return fmt.Errorf("lock day bounds [%d,%d] invalid", p.MinLockDays, p.MaxLockDays)
	case p.MinFeeRate > p.MaxFeeRate || p.MaxFeeRate > 100:
		return fmt.Errorf("fee rate bounds [%d,%d] invalid", p.MinFeeRate, p.MaxFeeRate)
	case p.MinDelegation == 0 || p.MinDelegation > p.MaxDelegation:
		return fmt.Errorf("delegation bounds [%d,%d] invalid", p.MinDelegation, p.MaxDelegation)
	case p.DailyLimit < p.MaxDelegation:
		return fmt.Errorf("daily limit %d below max delegation %d", p.DailyLimit, p.MaxDelegation)
	case p.MaxTransactionsPerDay == 0:
		return fmt.Errorf("max transactions per day must be positive")
	case p.SubscriptionPeriodDays == 0:
		return fmt.Errorf("subscription period must be positive")
	case p.EmergencyPenaltyRate > 100:
		return fmt.Errorf("emergency penalty rate %d over 100", p.EmergencyPenaltyRate)
	}

	switch p.DayWindow {
	case DayWindowCalendar, DayWindowRolling:
	default:
		return fmt.Errorf("unknown day window %q", p.DayWindow)
	}
	switch p.TradeGating {
	case TradeGatingPerTrade, TradeGatingAllowance:
	default:
		return fmt.Errorf("unknown trade gating %q", p.TradeGating)
	}
	return nil
}

// ValidSaveRate reports whether rate is within the save rate bounds.
func (p Params) ValidSaveRate(rate uint8) bool {
	return rate >= p.MinSaveRate && rate <= p.MaxSaveRate
}

// ValidLockDays reports whether days is within the lock period bounds.
func (p Params) ValidLockDays(days uint8) bool {
	return days >= p.MinLockDays && days <= p.MaxLockDays
}

// ValidFeeRate reports whether rate is within the fee rate bounds.
func (p Params) ValidFeeRate(rate uint8) bool {
	return rate >= p.MinFeeRate && rate <= p.MaxFeeRate
}

func (p Params) delegationCooldown() int64 {
	return int64(p.DelegationCooldownHours) * SecondsPerHour
}

func (p Params) feeCollectionCooldown() int64 {
	return int64(p.FeeCollectionCooldownHours) * SecondsPerHour
}

func (p Params) subscriptionPeriod() int64 {
	return int64(p.SubscriptionPeriodDays) * SecondsPerDay
}
