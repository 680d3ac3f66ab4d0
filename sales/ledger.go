/*
Package sales implements the retail sales ledger consumed by reporting.

PURPOSE:
  Products carry a price and a stock count. Recording a sale checks and
  decrements stock, snapshots the unit price and stores
  total = unit_price * quantity. Sales may be anonymous; a sale whose member
  is removed keeps its revenue with no member attached.

CORRECTIONS:
  CorrectSale and DeleteSale adjust stock by the quantity difference and
  write an audit entry with the before/after values in the same transaction.

SEE ALSO:
  - finance/engine.go: Reads SaleRow values through SalesInRange
*/
package sales

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/warp/gymdesk/generic"
	"github.com/warp/gymdesk/telemetry"
)

// Ledger records products and sales.
type Ledger struct {
	store  generic.TxStore
	clock  generic.Clock
	log    *slog.Logger
	tracer trace.Tracer

	unitsSold metric.Int64Counter
}

func NewLedger(store generic.TxStore, clock generic.Clock, logger *slog.Logger) *Ledger {
	unitsSold, _ := otel.Meter("gymdesk/sales").Int64Counter("gymdesk.sales.units",
		metric.WithDescription("Product units sold"))
	return &Ledger{
		store:     store,
		clock:     clock,
		log:       logger,
		tracer:    otel.Tracer("gymdesk/sales"),
		unitsSold: unitsSold,
	}
}

// =============================================================================
// PRODUCTS
// =============================================================================

type NewProduct struct {
	Name     string
	Category string
	Price    generic.Amount
	Stock    int
}

func (l *Ledger) AddProduct(ctx context.Context, req NewProduct) (generic.Product, error) {
	p := generic.Product{
		ID:        generic.ProductID(generic.NewID()),
		Name:      strings.TrimSpace(req.Name),
		Category:  strings.TrimSpace(req.Category),
		Price:     req.Price,
		Stock:     req.Stock,
		CreatedAt: l.clock.Now(),
	}
	switch {
	case p.Name == "":
		return generic.Product{}, &generic.ValidationError{Field: "name", Message: "required"}
	case p.Category == "":
		return generic.Product{}, &generic.ValidationError{Field: "category", Message: "required"}
	case p.Price.IsNegative():
		return generic.Product{}, &generic.ValidationError{Field: "price", Message: "must not be negative"}
	case p.Stock < 0:
		return generic.Product{}, &generic.ValidationError{Field: "stock", Message: "must not be negative"}
	}

	if err := l.store.InsertProduct(ctx, p); err != nil {
		return generic.Product{}, err
	}
	l.log.Info("product added", "product_id", p.ID, "name", p.Name, "stock", p.Stock)
	return p, nil
}

// Restock adds units to a product's stock.
func (l *Ledger) Restock(ctx context.Context, id generic.ProductID, units int) (generic.Product, error) {
	if units <= 0 {
		return generic.Product{}, &generic.ValidationError{Field: "units", Message: "must be positive"}
	}
	var p generic.Product
	err := l.store.WithTx(ctx, func(tx generic.Store) error {
		var err error
		if p, err = tx.GetProduct(ctx, id); err != nil {
			return err
		}
		p.Stock += units
		return tx.UpdateProduct(ctx, p)
	})
	if err != nil {
		return generic.Product{}, err
	}
	l.log.Info("product restocked", "product_id", id, "units", units, "stock", p.Stock)
	return p, nil
}

func (l *Ledger) ListProducts(ctx context.Context) ([]generic.Product, error) {
	return l.store.ListProducts(ctx)
}

// =============================================================================
// SALES
// =============================================================================

type SaleRequest struct {
	ProductID generic.ProductID
	MemberID  *generic.MemberID
	Quantity  int
	Method    generic.PaymentMethod
	SoldAt    *time.Time
}

// RecordSale sells quantity units, decrementing stock in the same transaction.
func (l *Ledger) RecordSale(ctx context.Context, req SaleRequest) (generic.SaleRow, error) {
	ctx, span := l.tracer.Start(ctx, "sales.record",
		trace.WithAttributes(attribute.String("product.id", string(req.ProductID)), attribute.Int("quantity", req.Quantity)))
	var err error
	defer func() { telemetry.End(span, err) }()

	if req.Quantity <= 0 {
		err = &generic.ValidationError{Field: "quantity", Message: "must be positive"}
		return generic.SaleRow{}, err
	}
	if strings.TrimSpace(string(req.Method)) == "" {
		err = &generic.ValidationError{Field: "payment_method", Message: "required"}
		return generic.SaleRow{}, err
	}
	soldAt := l.clock.Now()
	if req.SoldAt != nil {
		soldAt = *req.SoldAt
	}

	var row generic.SaleRow
	err = l.store.WithTx(ctx, func(tx generic.Store) error {
		if req.MemberID != nil {
			if _, err := tx.GetMember(ctx, *req.MemberID); err != nil {
				return err
			}
		}
		product, err := tx.GetProduct(ctx, req.ProductID)
		if err != nil {
			return err
		}
		if product.Stock < req.Quantity {
			return &generic.InsufficientStockError{ProductID: product.ID, Available: product.Stock, Requested: req.Quantity}
		}

		sale := generic.Sale{
			ID:        generic.SaleID(generic.NewID()),
			ProductID: product.ID,
			MemberID:  req.MemberID,
			Quantity:  req.Quantity,
			UnitPrice: product.Price,
			Total:     product.Price.MulInt(req.Quantity),
			Method:    req.Method,
			SoldAt:    soldAt,
		}
		if err := tx.InsertSale(ctx, sale); err != nil {
			return err
		}
		product.Stock -= req.Quantity
		if err := tx.UpdateProduct(ctx, product); err != nil {
			return err
		}
		row = generic.SaleRow{Sale: sale, ProductName: product.Name, Category: product.Category}
		return nil
	})
	if err != nil {
		return generic.SaleRow{}, err
	}

	l.unitsSold.Add(ctx, int64(row.Quantity), metric.WithAttributes(attribute.String("category", row.Category)))
	l.log.Info("sale recorded", "sale_id", row.ID, "product_id", row.ProductID, "quantity", row.Quantity,
		"total", row.Total.String())
	return row, nil
}

// InRange is the read API reporting consumes: sales whose sold_at falls in
// the business-zone period, joined with product name and category.
func (l *Ledger) InRange(ctx context.Context, p generic.Period) ([]generic.SaleRow, error) {
	from, to := p.Bounds(l.clock.Location())
	return l.store.SalesInRange(ctx, from, to)
}

// ByMember returns a member's purchases, newest first.
func (l *Ledger) ByMember(ctx context.Context, memberID generic.MemberID) ([]generic.SaleRow, error) {
	if _, err := l.store.GetMember(ctx, memberID); err != nil {
		return nil, err
	}
	return l.store.SalesByMember(ctx, memberID)
}

// =============================================================================
// CORRECTIONS
// =============================================================================

// Correction lists the fields to overwrite. Nil fields keep their value.
type Correction struct {
	Quantity *int
	Method   *generic.PaymentMethod
}

// CorrectSale fixes a sale's quantity or payment method. A quantity change
// moves the difference into or out of stock and recomputes the total at the
// original unit price.
func (l *Ledger) CorrectSale(ctx context.Context, id generic.SaleID, c Correction, actor, reason string) (generic.Sale, error) {
	ctx, span := l.tracer.Start(ctx, "sales.correct",
		trace.WithAttributes(attribute.String("sale.id", string(id)), attribute.String("actor", actor)))
	var err error
	defer func() { telemetry.End(span, err) }()

	if err = requireActor(actor, reason); err != nil {
		return generic.Sale{}, err
	}
	if c.Quantity == nil && c.Method == nil {
		err = &generic.ValidationError{Field: "correction", Message: "nothing to change"}
		return generic.Sale{}, err
	}
	if c.Quantity != nil && *c.Quantity <= 0 {
		err = &generic.ValidationError{Field: "quantity", Message: "must be positive"}
		return generic.Sale{}, err
	}
	if c.Method != nil && strings.TrimSpace(string(*c.Method)) == "" {
		err = &generic.ValidationError{Field: "payment_method", Message: "required"}
		return generic.Sale{}, err
	}

	var corrected generic.Sale
	err = l.store.WithTx(ctx, func(tx generic.Store) error {
		before, err := tx.GetSale(ctx, id)
		if err != nil {
			return err
		}
		after := before
		if c.Method != nil {
			after.Method = *c.Method
		}
		if c.Quantity != nil && *c.Quantity != before.Quantity {
			product, err := tx.GetProduct(ctx, before.ProductID)
			if err != nil {
				return err
			}
			extra := *c.Quantity - before.Quantity
			if extra > product.Stock {
				return &generic.InsufficientStockError{ProductID: product.ID, Available: product.Stock, Requested: extra}
			}
			product.Stock -= extra
			if err := tx.UpdateProduct(ctx, product); err != nil {
				return err
			}
			after.Quantity = *c.Quantity
			after.Total = after.UnitPrice.MulInt(after.Quantity)
		}
		if err := tx.UpdateSale(ctx, after); err != nil {
			return err
		}

		entry, err := generic.NewAuditEntry(l.clock, actor, generic.AuditSaleCorrected, generic.EntrySale,
			string(id), reason, record(before), record(after))
		if err != nil {
			return err
		}
		corrected = after
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return generic.Sale{}, err
	}

	l.log.Info("sale corrected", "sale_id", id, "actor", actor, "quantity", corrected.Quantity,
		"total", corrected.Total.String())
	return corrected, nil
}

// DeleteSale removes a sale and returns its units to stock.
func (l *Ledger) DeleteSale(ctx context.Context, id generic.SaleID, actor, reason string) error {
	ctx, span := l.tracer.Start(ctx, "sales.delete",
		trace.WithAttributes(attribute.String("sale.id", string(id)), attribute.String("actor", actor)))
	var err error
	defer func() { telemetry.End(span, err) }()

	if err = requireActor(actor, reason); err != nil {
		return err
	}

	var removed generic.Sale
	err = l.store.WithTx(ctx, func(tx generic.Store) error {
		before, err := tx.GetSale(ctx, id)
		if err != nil {
			return err
		}
		product, err := tx.GetProduct(ctx, before.ProductID)
		if err != nil {
			return err
		}
		product.Stock += before.Quantity
		if err := tx.UpdateProduct(ctx, product); err != nil {
			return err
		}
		if err := tx.DeleteSale(ctx, id); err != nil {
			return err
		}
		entry, err := generic.NewAuditEntry(l.clock, actor, generic.AuditSaleDeleted, generic.EntrySale,
			string(id), reason, record(before), nil)
		if err != nil {
			return err
		}
		removed = before
		return tx.AppendAudit(ctx, entry)
	})
	if err != nil {
		return err
	}

	l.log.Info("sale deleted", "sale_id", id, "actor", actor, "restocked", removed.Quantity)
	return nil
}

func requireActor(actor, reason string) error {
	if strings.TrimSpace(actor) == "" {
		return &generic.ValidationError{Field: "actor", Message: "required"}
	}
	if strings.TrimSpace(reason) == "" {
		return &generic.ValidationError{Field: "reason", Message: "required"}
	}
	return nil
}

type saleRecord struct {
	ID        generic.SaleID        `json:"id"`
	ProductID generic.ProductID     `json:"product_id"`
	MemberID  *generic.MemberID     `json:"member_id"`
	Quantity  int                   `json:"quantity"`
	UnitPrice string                `json:"unit_price"`
	Total     string                `json:"total"`
	Method    generic.PaymentMethod `json:"payment_method"`
	SoldAt    time.Time             `json:"sold_at"`
}

func record(s generic.Sale) saleRecord {
	return saleRecord{
		ID:        s.ID,
		ProductID: s.ProductID,
		MemberID:  s.MemberID,
		Quantity:  s.Quantity,
		UnitPrice: s.UnitPrice.String(),
		Total:     s.Total.String(),
		Method:    s.Method,
		SoldAt:    s.SoldAt,
	}
}
