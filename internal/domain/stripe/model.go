package stripe

import (
	"math"
	"strings"
	"time"

	"tutormarket/backend/internal/domain/loyalty"
)

// LessonCheckoutInput is a student's request to book and pay for a lesson.
type LessonCheckoutInput struct {
	TeacherID  string  `json:"teacherId" validate:"required"`
	Date       string  `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime  string  `json:"startTime" validate:"required,datetime=15:04"`
	Duration   int     `json:"duration" validate:"required,min=15,max=240"`
	Price      float64 `json:"price" validate:"required,gt=0"`
	SuccessURL string  `json:"successUrl" validate:"omitempty,url"`
	CancelURL  string  `json:"cancelUrl" validate:"omitempty,url"`
}

func (i *LessonCheckoutInput) Trim() {
	i.TeacherID = strings.TrimSpace(i.TeacherID)
	i.Date = strings.TrimSpace(i.Date)
	i.StartTime = strings.TrimSpace(i.StartTime)
	i.SuccessURL = strings.TrimSpace(i.SuccessURL)
	i.CancelURL = strings.TrimSpace(i.CancelURL)
}

type LessonCheckout struct {
	BookingID string  `json:"bookingId"`
	URL       string  `json:"url"`
	Amount    float64 `json:"amount"`
	Discount  int     `json:"discount"`
}

// Quote is what the student pays and what the teacher will receive.
type Quote struct {
	Amount       float64
	Discount     int
	TeacherShare float64
}

// QuoteLesson applies the student's permanent loyalty discount to price.
func QuoteLesson(price float64, info *loyalty.Info, sharePercent float64) Quote {
	q := Quote{Amount: price}
	if info != nil && info.PermanentDiscount > 0 {
		q.Discount = info.PermanentDiscount
		q.Amount = loyalty.ApplyDiscount(price, info.PermanentDiscount)
	}
	q.TeacherShare = math.Round(q.Amount*sharePercent) / 100
	return q
}

// Payment is the record written for every paid subscription invoice.
type Payment struct {
	UserID    string    `firestore:"userId" json:"userId"`
	Plan      string    `firestore:"plan" json:"plan"`
	Amount    float64   `firestore:"amount" json:"amount"`
	Currency  string    `firestore:"currency" json:"currency"`
	InvoiceID string    `firestore:"invoiceId" json:"invoiceId"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
}
