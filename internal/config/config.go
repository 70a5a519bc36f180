package config

import (
	"time"

	"github.com/spf13/viper"
)

// Platform holds the business configuration the payment lifecycle depends on.
// Everything here is policy, not law: rates and windows are tuned by ops, so
// they come from the environment with sane defaults.
type Platform struct {
	// Withdrawal requests are only accepted between these days of the month,
	// inclusive. 1..31 covering the whole month disables the window.
	WithdrawalWindowStartDay int
	WithdrawalWindowEndDay   int

	MinWithdrawalPoints int64

	// Points convert to NGN at this rate. The rate in force at creation time
	// is snapshotted onto each withdrawal request.
	PointRateKobo int64

	// Platform commission on escrow releases, in basis points.
	PlatformCommissionBps int64

	// Referrer share of subscription payments and escrow releases, in basis
	// points. Paid in points out of the platform's commission.
	ReferralCommissionBps int64

	// Grace period added to a job deadline before escrow auto-releases.
	EscrowGraceDays int

	SweepInterval  time.Duration
	SweepBatchSize int

	// Settlement account funding transfers should be made to.
	BankName          string
	BankAccountName   string
	BankAccountNumber string

	// Optional ops webhook notified on every state transition.
	WebhookURL string
}

// Load reads platform configuration from viper with defaults.
func Load() *Platform {
	viper.SetDefault("platform.withdrawal_window_start_day", 25)
	viper.SetDefault("platform.withdrawal_window_end_day", 31)
	viper.SetDefault("platform.min_withdrawal_points", 20)
	viper.SetDefault("platform.point_rate_kobo", 50000) // 1 point = NGN 500
	viper.SetDefault("platform.commission_bps", 1000)   // 10%
	viper.SetDefault("platform.referral_commission_bps", 200)
	viper.SetDefault("platform.escrow_grace_days", 5)
	viper.SetDefault("platform.sweep_interval", time.Minute)
	viper.SetDefault("platform.sweep_batch_size", 50)
	viper.SetDefault("platform.bank_name", "Zenith Bank")
	viper.SetDefault("platform.bank_account_name", "CraftBridge Ltd")
	viper.SetDefault("platform.bank_account_number", "1012345678")
	viper.SetDefault("platform.webhook_url", "")

	return &Platform{
		WithdrawalWindowStartDay: viper.GetInt("platform.withdrawal_window_start_day"),
		WithdrawalWindowEndDay:   viper.GetInt("platform.withdrawal_window_end_day"),
		MinWithdrawalPoints:      viper.GetInt64("platform.min_withdrawal_points"),
		PointRateKobo:            viper.GetInt64("platform.point_rate_kobo"),
		PlatformCommissionBps:    viper.GetInt64("platform.commission_bps"),
		ReferralCommissionBps:    viper.GetInt64("platform.referral_commission_bps"),
		EscrowGraceDays:          viper.GetInt("platform.escrow_grace_days"),
		SweepInterval:            viper.GetDuration("platform.sweep_interval"),
		SweepBatchSize:           viper.GetInt("platform.sweep_batch_size"),
		BankName:                 viper.GetString("platform.bank_name"),
		BankAccountName:          viper.GetString("platform.bank_account_name"),
		BankAccountNumber:        viper.GetString("platform.bank_account_number"),
		WebhookURL:               viper.GetString("platform.webhook_url"),
	}
}

// WithdrawalWindowOpen reports whether withdrawal requests are accepted at t.
func (p *Platform) WithdrawalWindowOpen(t time.Time) bool {
	day := t.Day()
	return day >= p.WithdrawalWindowStartDay && day <= p.WithdrawalWindowEndDay
}

// PlatformCommission returns the platform's cut of an escrow amount.
func (p *Platform) PlatformCommission(amountKobo int64) int64 {
	return amountKobo * p.PlatformCommissionBps / 10000
}

// ReferralPoints converts the referrer's share of an amount into points,
// rounding down. Zero when the amount is too small to mint a point.
func (p *Platform) ReferralPoints(amountKobo int64) int64 {
	if p.PointRateKobo <= 0 {
		return 0
	}
	return amountKobo * p.ReferralCommissionBps / 10000 / p.PointRateKobo
}

// PointsToKobo converts points to kobo at the current rate.
func (p *Platform) PointsToKobo(points int64) int64 {
	return points * p.PointRateKobo
}
