package user

import (
	"time"

	"tutormarket/backend/internal/store"
)

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"

	PlanFree = "free"
)

type Profile struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role,omitempty"`

	StripeAccountID  string  `json:"stripeAccountId,omitempty"`
	StripeCustomerID string  `json:"stripeCustomerId,omitempty"`
	TotalEarnings    float64 `json:"totalEarnings"`
	SubscriptionPlan string  `json:"subscriptionPlan"`
	Credits          int64   `json:"credits"`

	FCMTokens []string `json:"-"`

	CreatedAt *time.Time `json:"createdAt,omitempty"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// FromData decodes a users document. A missing plan means free.
func FromData(uid string, data map[string]any) Profile {
	p := Profile{
		UID:              uid,
		Email:            store.String(data, "email"),
		DisplayName:      store.String(data, "displayName"),
		Role:             store.String(data, "role"),
		StripeAccountID:  store.String(data, "stripeAccountId"),
		StripeCustomerID: store.String(data, "stripeCustomerId"),
		SubscriptionPlan: store.String(data, "subscriptionPlan"),
		Credits:          store.Int(data, "credits"),
		FCMTokens:        store.Strings(data, "fcmTokens"),
		CreatedAt:        store.TimePtr(data, "createdAt"),
		UpdatedAt:        store.TimePtr(data, "updatedAt"),
	}
	if earnings, ok := store.Float(data, "totalEarnings"); ok {
		p.TotalEarnings = earnings
	}
	if p.SubscriptionPlan == "" {
		p.SubscriptionPlan = PlanFree
	}
	return p
}

func (p Profile) HasRole(r string) bool {
	return p.Role == r
}

// CanReceivePayouts reports whether transfers can be routed to this profile.
func (p Profile) CanReceivePayouts() bool {
	return p.StripeAccountID != ""
}
