package domain

import "time"

// NormalizedDeal is the canonical offer shape produced by the normalizer.
type NormalizedDeal struct {
	Title       string     `json:"title" validate:"required"`
	URL         string     `json:"url" validate:"required,url"`
	Description string     `json:"description,omitempty"`
	ImageURL    string     `json:"image_url,omitempty"`
	Merchant    string     `json:"merchant,omitempty"`
	Category    string     `json:"category,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Source      string     `json:"source" validate:"required"`
	ExternalID  string     `json:"external_id,omitempty"`
	CouponCode  string     `json:"coupon_code,omitempty"`
	Price       *float64   `json:"price,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// DealStatus is the moderation state of a stored deal. The pipeline only ever writes StatusPending.
type DealStatus string

const (
	StatusPending  DealStatus = "pending"
	StatusApproved DealStatus = "approved"
	StatusRejected DealStatus = "rejected"
)

// DealRecord is the persisted entity owned by the store.
type DealRecord struct {
	ID           int64
	DedupKey     string
	Deal         NormalizedDeal
	Status       DealStatus
	QualityScore float64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DealUpdate carries the material fields that changed. Nil means unchanged.
type DealUpdate struct {
	Title      *string
	Price      *float64
	CouponCode *string
	ExpiresAt  *time.Time
}

// Empty reports whether the update has nothing to write.
func (u DealUpdate) Empty() bool {
	return u.Title == nil && u.Price == nil && u.CouponCode == nil && u.ExpiresAt == nil
}

// Fields lists the names of the columns touched by the update.
func (u DealUpdate) Fields() []string {
	var fields []string
	if u.Title != nil {
		fields = append(fields, "title")
	}
	if u.Price != nil {
		fields = append(fields, "price")
	}
	if u.CouponCode != nil {
		fields = append(fields, "coupon_code")
	}
	if u.ExpiresAt != nil {
		fields = append(fields, "expires_at")
	}
	return fields
}

// Apply returns the deal with the update's fields set.
func (u DealUpdate) Apply(deal NormalizedDeal) NormalizedDeal {
	if u.Title != nil {
		deal.Title = *u.Title
	}
	if u.Price != nil {
		p := *u.Price
		deal.Price = &p
	}
	if u.CouponCode != nil {
		deal.CouponCode = *u.CouponCode
	}
	if u.ExpiresAt != nil {
		t := *u.ExpiresAt
		deal.ExpiresAt = &t
	}
	return deal
}

// Action classifies what the merge engine did with one deal.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
	ActionError   Action = "error"
)

// Outcome is the per-item result of the merge engine.
type Outcome struct {
	Action Action
	ID     int64
	Err    error
}

// ProcessingResult aggregates outcomes for one job.
type ProcessingResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// Record counts a single outcome.
func (r *ProcessingResult) Record(action Action) {
	switch action {
	case ActionCreated:
		r.Created++
	case ActionUpdated:
		r.Updated++
	case ActionSkipped:
		r.Skipped++
	default:
		r.Errors++
	}
}

// Total is the number of items accounted for.
func (r ProcessingResult) Total() int {
	return r.Created + r.Updated + r.Skipped + r.Errors
}
