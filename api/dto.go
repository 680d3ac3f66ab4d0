/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model from the wire contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Composite response wrappers

MONEY AND DATES:
  Amounts are decimal strings with two places ("70000.00"), never floats.
  Calendar days are "YYYY-MM-DD"; instants are RFC 3339 in the business zone.

VALIDATION:
  Validation is done in handlers and services, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/gymdesk/attendance"
	"github.com/warp/gymdesk/finance"
	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/membership"
	"github.com/warp/gymdesk/plans"
)

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO represents a member with derived billing status.
type MemberDTO struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Phone          string  `json:"phone"`
	Plan           string  `json:"plan"`
	JoinDate       string  `json:"join_date"`
	PlanExpiration *string `json:"plan_expiration"`
	PlanPrice      string  `json:"plan_price"`
	Status         string  `json:"status"`
	DaysRemaining  *int    `json:"days_remaining"`
	CreatedAt      string  `json:"created_at,omitempty"`
}

// RegisterMemberRequest is the body of POST /api/members.
type RegisterMemberRequest struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Plan          string `json:"plan"`
	PaymentMethod string `json:"payment_method"`
	StartDate     string `json:"start_date,omitempty"`
}

// RenewRequest is the body of POST /api/members/{id}/renew.
type RenewRequest struct {
	PaymentMethod string `json:"payment_method"`
	StartDate     string `json:"start_date,omitempty"`
}

// ChangePlanRequest is the body of POST /api/members/{id}/plan.
type ChangePlanRequest struct {
	Plan          string `json:"plan"`
	PaymentMethod string `json:"payment_method"`
	StartDate     string `json:"start_date,omitempty"`
}

// UpdateMemberRequest edits identity fields. Absent fields are unchanged.
type UpdateMemberRequest struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

func toMemberDTO(v membership.View, loc *time.Location) MemberDTO {
	dto := MemberDTO{
		ID:            string(v.ID),
		Name:          v.Name,
		Phone:         v.Phone,
		Plan:          string(v.Plan),
		JoinDate:      v.JoinDate.String(),
		PlanPrice:     v.PlanPrice.String(),
		Status:        string(v.Status),
		DaysRemaining: v.DaysRemaining,
	}
	if v.PlanExpiration != nil {
		s := v.PlanExpiration.String()
		dto.PlanExpiration = &s
	}
	if !v.CreatedAt.IsZero() {
		dto.CreatedAt = v.CreatedAt.In(loc).Format(time.RFC3339)
	}
	return dto
}

func toMemberDTOs(views []membership.View, loc *time.Location) []MemberDTO {
	out := make([]MemberDTO, len(views))
	for i, v := range views {
		out[i] = toMemberDTO(v, loc)
	}
	return out
}

// =============================================================================
// ATTENDANCE
// =============================================================================

// CheckInRequest is the optional body of POST /api/members/{id}/checkins.
type CheckInRequest struct {
	At string `json:"at,omitempty"` // RFC 3339; default now
}

type AttendanceDTO struct {
	ID          string `json:"id,omitempty"`
	MemberID    string `json:"member_id"`
	CheckedInAt string `json:"checked_in_at,omitempty"`
	Day         string `json:"day"`
}

type WarningDTO struct {
	Message     string `json:"message"`
	Plan        string `json:"plan"`
	Expiration  string `json:"expiration"`
	DaysOverdue int    `json:"days_overdue"`
}

// CheckInResponse reports a check-in. A repeat visit the same day is a 200
// with AlreadyCheckedIn set.
type CheckInResponse struct {
	Attendance       AttendanceDTO `json:"attendance"`
	AlreadyCheckedIn bool          `json:"already_checked_in"`
	Warning          *WarningDTO   `json:"warning,omitempty"`
}

func toAttendanceDTO(a generic.Attendance, loc *time.Location) AttendanceDTO {
	dto := AttendanceDTO{ID: string(a.ID), MemberID: string(a.MemberID), Day: a.Day.String()}
	if !a.CheckedInAt.IsZero() {
		dto.CheckedInAt = a.CheckedInAt.In(loc).Format(time.RFC3339)
	}
	return dto
}

func toCheckInResponse(res attendance.CheckInResult, loc *time.Location) CheckInResponse {
	resp := CheckInResponse{
		Attendance:       toAttendanceDTO(res.Attendance, loc),
		AlreadyCheckedIn: res.AlreadyCheckedIn,
	}
	if w := res.Warning; w != nil {
		resp.Warning = &WarningDTO{
			Message:     w.String(),
			Plan:        string(w.Plan),
			Expiration:  w.Expiration.String(),
			DaysOverdue: w.DaysOverdue,
		}
	}
	return resp
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentDTO struct {
	ID            string `json:"id"`
	MemberID      string `json:"member_id"`
	Amount        string `json:"amount"`
	PaymentMethod string `json:"payment_method"`
	Plan          string `json:"plan"`
	PeriodStart   string `json:"period_start"`
	PeriodEnd     string `json:"period_end"`
	PaidAt        string `json:"paid_at"`
}

// CorrectPaymentRequest is the body of PATCH /api/admin/payments/{id}.
type CorrectPaymentRequest struct {
	Amount        *string `json:"amount,omitempty"`
	PaymentMethod *string `json:"payment_method,omitempty"`
	PeriodStart   *string `json:"period_start,omitempty"`
	PeriodEnd     *string `json:"period_end,omitempty"`
	PaidAt        *string `json:"paid_at,omitempty"`
	Reason        string  `json:"reason"`
}

func toPaymentDTO(p generic.Payment, loc *time.Location) PaymentDTO {
	return PaymentDTO{
		ID:            string(p.ID),
		MemberID:      string(p.MemberID),
		Amount:        p.Amount.String(),
		PaymentMethod: string(p.Method),
		Plan:          string(p.Plan),
		PeriodStart:   p.Period.Start.String(),
		PeriodEnd:     p.Period.End.String(),
		PaidAt:        p.PaidAt.In(loc).Format(time.RFC3339),
	}
}

// =============================================================================
// CATALOG, PRODUCTS, SALES
// =============================================================================

type PlanDTO struct {
	Code         string `json:"code"`
	Name         string `json:"name"`
	Price        string `json:"price"`
	ValidityDays int    `json:"validity_days"`
}

func toPlanDTO(p plans.Plan) PlanDTO {
	return PlanDTO{Code: string(p.Code), Name: p.Name, Price: p.Price.String(), ValidityDays: p.ValidityDays}
}

type ProductDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    string `json:"price"`
	Stock    int    `json:"stock"`
}

type CreateProductRequest struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Price    string `json:"price"`
	Stock    int    `json:"stock"`
}

type RestockRequest struct {
	Units int `json:"units"`
}

func toProductDTO(p generic.Product) ProductDTO {
	return ProductDTO{ID: string(p.ID), Name: p.Name, Category: p.Category, Price: p.Price.String(), Stock: p.Stock}
}

// RecordSaleRequest is the body of POST /api/sales. MemberID is optional.
type RecordSaleRequest struct {
	ProductID     string  `json:"product_id"`
	MemberID      *string `json:"member_id,omitempty"`
	Quantity      int     `json:"quantity"`
	PaymentMethod string  `json:"payment_method"`
	SoldAt        string  `json:"sold_at,omitempty"`
}

// CorrectSaleRequest is the body of PATCH /api/admin/sales/{id}.
type CorrectSaleRequest struct {
	Quantity      *int    `json:"quantity,omitempty"`
	PaymentMethod *string `json:"payment_method,omitempty"`
	Reason        string  `json:"reason"`
}

type SaleDTO struct {
	ID            string  `json:"id"`
	ProductID     string  `json:"product_id"`
	ProductName   string  `json:"product_name,omitempty"`
	Category      string  `json:"category,omitempty"`
	MemberID      *string `json:"member_id"`
	Quantity      int     `json:"quantity"`
	UnitPrice     string  `json:"unit_price"`
	Total         string  `json:"total"`
	PaymentMethod string  `json:"payment_method"`
	SoldAt        string  `json:"sold_at"`
}

func toSaleDTO(s generic.Sale, loc *time.Location) SaleDTO {
	dto := SaleDTO{
		ID:            string(s.ID),
		ProductID:     string(s.ProductID),
		Quantity:      s.Quantity,
		UnitPrice:     s.UnitPrice.String(),
		Total:         s.Total.String(),
		PaymentMethod: string(s.Method),
		SoldAt:        s.SoldAt.In(loc).Format(time.RFC3339),
	}
	if s.MemberID != nil {
		id := string(*s.MemberID)
		dto.MemberID = &id
	}
	return dto
}

func toSaleRowDTO(r generic.SaleRow, loc *time.Location) SaleDTO {
	dto := toSaleDTO(r.Sale, loc)
	dto.ProductName = r.ProductName
	dto.Category = r.Category
	return dto
}

// =============================================================================
// FINANCE
// =============================================================================

type RevenueDTO struct {
	Membership string `json:"membership"`
	Products   string `json:"products"`
	Total      string `json:"total"`
}

type BreakdownDTO struct {
	Key    string `json:"key"`
	Count  int    `json:"count"`
	Amount string `json:"amount"`
}

type ProductRankDTO struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	Quantity  int    `json:"quantity_sold"`
	Revenue   string `json:"revenue"`
}

type ReportDTO struct {
	PeriodStart  string           `json:"period_start"`
	PeriodEnd    string           `json:"period_end"` // exclusive
	CostRatio    string           `json:"cost_ratio"`
	TaxRate      string           `json:"tax_rate"`
	Revenue      RevenueDTO       `json:"revenue"`
	Margin       string           `json:"margin"`
	Tax          string           `json:"tax"`
	Net          string           `json:"net"`
	ByPlan       []BreakdownDTO   `json:"by_plan"`
	ByMethod     []BreakdownDTO   `json:"by_payment_method"`
	ByCategory   []BreakdownDTO   `json:"by_category"`
	PaymentCount int              `json:"payment_count"`
	SaleCount    int              `json:"sale_count"`
	Attendance   int              `json:"attendance"`
	TopProducts  []ProductRankDTO `json:"top_products"`
}

type PeriodSummaryDTO struct {
	Label      string `json:"label"`
	Start      string `json:"start"`
	End        string `json:"end"`
	Membership string `json:"membership"`
	Products   string `json:"products"`
	Total      string `json:"total"`
	Margin     string `json:"margin"`
	Tax        string `json:"tax"`
}

type PlanCountDTO struct {
	Plan    string `json:"plan"`
	Name    string `json:"name"`
	Members int    `json:"members"`
}

type KPIsDTO struct {
	AverageTransaction  string `json:"average_transaction"`
	RevenuePerMember    string `json:"revenue_per_member"`
	CurrentPlanShare    string `json:"current_plan_share"` // percent
	AttendancePerMember string `json:"attendance_per_member"`
	Members             int    `json:"members"`
	MembersWithPlan     int    `json:"members_with_plan"`
	MonthTransactions   int    `json:"month_transactions"`
	MonthAttendance     int    `json:"month_attendance"`
}

type DashboardDTO struct {
	Today            string             `json:"today"`
	Day              PeriodSummaryDTO   `json:"day"`
	Week             PeriodSummaryDTO   `json:"week"`
	Month            PeriodSummaryDTO   `json:"month"`
	PlanDistribution []PlanCountDTO     `json:"plan_distribution"`
	History          []PeriodSummaryDTO `json:"history"`
	TopProducts      []ProductRankDTO   `json:"top_products"`
	KPIs             KPIsDTO            `json:"kpis"`
}

// ToReportDTO converts a report to its wire shape. The CLI prints the same
// shape as the API.
func ToReportDTO(r finance.Report) ReportDTO {
	return ReportDTO{
		PeriodStart: r.Period.Start.String(),
		PeriodEnd:   r.Period.End.String(),
		CostRatio:   r.Rates.CostRatio.String(),
		TaxRate:     r.Rates.TaxRate.String(),
		Revenue: RevenueDTO{
			Membership: r.Revenue.Membership.String(),
			Products:   r.Revenue.Products.String(),
			Total:      r.Revenue.Total.String(),
		},
		Margin:       r.Margin.String(),
		Tax:          r.Tax.String(),
		Net:          r.Net.String(),
		ByPlan:       toBreakdownDTOs(r.ByPlan),
		ByMethod:     toBreakdownDTOs(r.ByMethod),
		ByCategory:   toBreakdownDTOs(r.ByCategory),
		PaymentCount: r.PaymentCount,
		SaleCount:    r.SaleCount,
		Attendance:   r.Attendance,
		TopProducts:  toProductRankDTOs(r.TopProducts),
	}
}

func toBreakdownDTOs(lines []finance.Breakdown) []BreakdownDTO {
	out := make([]BreakdownDTO, len(lines))
	for i, l := range lines {
		out[i] = BreakdownDTO{Key: l.Key, Count: l.Count, Amount: l.Amount.String()}
	}
	return out
}

func toProductRankDTOs(ranks []finance.ProductRank) []ProductRankDTO {
	out := make([]ProductRankDTO, len(ranks))
	for i, r := range ranks {
		out[i] = ProductRankDTO{
			ProductID: string(r.ProductID),
			Name:      r.Name,
			Category:  r.Category,
			Quantity:  r.Quantity,
			Revenue:   r.Revenue.String(),
		}
	}
	return out
}

func toPeriodSummaryDTO(s finance.PeriodSummary) PeriodSummaryDTO {
	return PeriodSummaryDTO{
		Label:      s.Label,
		Start:      s.Period.Start.String(),
		End:        s.Period.End.String(),
		Membership: s.Membership.String(),
		Products:   s.Products.String(),
		Total:      s.Total.String(),
		Margin:     s.Margin.String(),
		Tax:        s.Tax.String(),
	}
}

func toPeriodSummaryDTOs(series []finance.PeriodSummary) []PeriodSummaryDTO {
	out := make([]PeriodSummaryDTO, len(series))
	for i, s := range series {
		out[i] = toPeriodSummaryDTO(s)
	}
	return out
}

func toDashboardDTO(d finance.Dashboard) DashboardDTO {
	dist := make([]PlanCountDTO, len(d.PlanDistribution))
	for i, pc := range d.PlanDistribution {
		dist[i] = PlanCountDTO{Plan: string(pc.Plan), Name: pc.Name, Members: pc.Members}
	}
	return DashboardDTO{
		Today:            d.Today.String(),
		Day:              toPeriodSummaryDTO(d.Day),
		Week:             toPeriodSummaryDTO(d.Week),
		Month:            toPeriodSummaryDTO(d.Month),
		PlanDistribution: dist,
		History:          toPeriodSummaryDTOs(d.History),
		TopProducts:      toProductRankDTOs(d.TopProducts),
		KPIs: KPIsDTO{
			AverageTransaction:  d.KPIs.AverageTransaction.String(),
			RevenuePerMember:    d.KPIs.RevenuePerMember.String(),
			CurrentPlanShare:    d.KPIs.CurrentPlanShare.StringFixed(2),
			AttendancePerMember: d.KPIs.AttendancePerMember.StringFixed(2),
			Members:             d.KPIs.Members,
			MembersWithPlan:     d.KPIs.MembersWithPlan,
			MonthTransactions:   d.KPIs.MonthTransactions,
			MonthAttendance:     d.KPIs.MonthAttendance,
		},
	}
}

// =============================================================================
// ADMIN / SCENARIOS / ERRORS
// =============================================================================

type AuditEntryDTO struct {
	ID         string          `json:"id"`
	RecordedAt string          `json:"recorded_at"`
	Actor      string          `json:"actor"`
	Action     string          `json:"action"`
	Kind       string          `json:"kind"`
	EntryID    string          `json:"entry_id"`
	Reason     string          `json:"reason,omitempty"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

func toAuditEntryDTO(e generic.AuditEntry, loc *time.Location) AuditEntryDTO {
	return AuditEntryDTO{
		ID:         e.ID,
		RecordedAt: e.RecordedAt.In(loc).Format(time.RFC3339),
		Actor:      e.Actor,
		Action:     string(e.Action),
		Kind:       string(e.Kind),
		EntryID:    e.EntryID,
		Reason:     e.Reason,
		Before:     e.Before,
		After:      e.After,
	}
}

// ScenarioDTO represents a demo data set.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
