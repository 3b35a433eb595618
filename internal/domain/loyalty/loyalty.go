package loyalty

import (
	"math"
	"sort"
	"time"

	"tutormarket/backend/internal/store"
)

const (
	PlanFree    = "free"
	PlanStarter = "starter"
	PlanPro     = "pro"
	PlanVIP     = "vip"

	// HistoryLimit bounds how many payments feed the streak.
	HistoryLimit = 24
	// MaxGap is the longest pause between two payments that keeps a streak alive.
	MaxGap = 40 * 24 * time.Hour
	// VIPDiscountPercent is granted at the 6, 12 and 18 month milestones.
	VIPDiscountPercent = 10
)

var vipMilestones = map[int]bool{6: true, 12: true, 18: true}

// Info is a subscriber's loyalty standing.
type Info struct {
	Plan              string `json:"plan"`
	LoyaltyMonths     int    `json:"loyaltyMonths"`
	LoyaltyBonusCount int    `json:"loyaltyBonusCount"`
	PermanentDiscount int    `json:"permanentDiscount"`
}

// Payment is a subscription payment as stored; CreatedAt is kept raw
// because clients have written both timestamps and strings.
type Payment struct {
	ID        string
	CreatedAt any
}

// Streak counts consecutive monthly payments back from the newest one.
// Payments whose timestamp cannot be parsed are skipped.
func Streak(payments []Payment) int {
	times := make([]time.Time, 0, len(payments))
	for _, p := range payments {
		if t, ok := store.ParseTime(p.CreatedAt); ok {
			times = append(times, t)
		}
	}
	if len(times) == 0 {
		return 0
	}
	sort.SliceStable(times, func(i, j int) bool { return times[i].After(times[j]) })

	months := 1
	for i := 1; i < len(times); i++ {
		if times[i-1].Sub(times[i]) > MaxGap {
			break
		}
		months++
	}
	return months
}

// Compute derives bonus lessons and the permanent discount from a streak.
func Compute(plan string, payments []Payment) Info {
	if plan == "" {
		plan = PlanFree
	}
	months := Streak(payments)
	info := Info{Plan: plan, LoyaltyMonths: months}

	if plan == PlanPro || plan == PlanVIP {
		info.LoyaltyBonusCount = months / 3
	}
	if plan == PlanVIP && vipMilestones[months] {
		info.PermanentDiscount = VIPDiscountPercent
	}
	return info
}

// ApplyDiscount reduces price by a percentage, rounded to whole cents.
func ApplyDiscount(price float64, percent int) float64 {
	if percent <= 0 {
		return price
	}
	discounted := price * float64(100-percent) / 100
	return math.Round(discounted*100) / 100
}
