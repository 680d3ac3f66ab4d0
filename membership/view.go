package membership

import (
	"time"

	"github.com/warp/gymdesk/generic"
)

// Status is a member's billing status. It is derived, never stored.
type Status string

const (
	StatusActive       Status = "ACTIVE"
	StatusExpiringSoon Status = "EXPIRING_SOON"
	StatusExpired      Status = "EXPIRED"
)

// StatusOf classifies an expiration relative to today:
//
//	no expiration        ACTIVE
//	days remaining < 0   EXPIRED
//	0..window            EXPIRING_SOON
//	otherwise            ACTIVE
func StatusOf(expiration *generic.Date, today generic.Date, window int) (Status, *int) {
	if expiration == nil {
		return StatusActive, nil
	}
	days := today.DaysUntil(*expiration)
	switch {
	case days < 0:
		return StatusExpired, &days
	case days <= window:
		return StatusExpiringSoon, &days
	default:
		return StatusActive, &days
	}
}

// View is a member as shown to callers: the record plus its derived status.
type View struct {
	generic.Member
	Status        Status
	DaysRemaining *int
}

func NewView(m generic.Member, today generic.Date, window int) View {
	status, days := StatusOf(m.PlanExpiration, today, window)
	return View{Member: m, Status: status, DaysRemaining: days}
}

// HasCurrentPlan reports whether the plan still covers today.
func (v View) HasCurrentPlan() bool {
	return v.PlanExpiration == nil || (v.DaysRemaining != nil && *v.DaysRemaining >= 0)
}

// record is the audit-log shape of a member.
type record struct {
	ID             generic.MemberID `json:"id"`
	Name           string           `json:"name"`
	Phone          string           `json:"phone"`
	Plan           generic.PlanCode `json:"plan"`
	JoinDate       generic.Date     `json:"join_date"`
	PlanExpiration *generic.Date    `json:"plan_expiration,omitempty"`
	PlanPrice      string           `json:"plan_price"`
	CreatedAt      time.Time        `json:"created_at"`
}

func recordOf(m generic.Member) record {
	return record{
		ID:             m.ID,
		Name:           m.Name,
		Phone:          m.Phone,
		Plan:           m.Plan,
		JoinDate:       m.JoinDate,
		PlanExpiration: m.PlanExpiration,
		PlanPrice:      m.PlanPrice.String(),
		CreatedAt:      m.CreatedAt,
	}
}
