package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TopProductsLimit caps the product ranking of a sales summary
const TopProductsLimit = 5

// SortField selects the ordering of a sales listing
type SortField string

// Sort fields
const (
	SortByDate   SortField = "date"
	SortByAmount SortField = "amount"
)

// SalesFilter narrows a sales listing. Zero values match everything. The
// default order is newest first.
type SalesFilter struct {
	// Date selects one calendar day in the journal's location
	Date          *time.Time
	PaymentMethod *models.PaymentMethod
	// ProductName matches any line whose name contains it, ignoring case
	ProductName string
	SortBy      SortField
	Ascending   bool
}

// ParseSalesFilter builds a filter from its textual query form
func ParseSalesFilter(date, paymentMethod, product, sortBy, direction string, loc *time.Location) (SalesFilter, error) {
	var filter SalesFilter

	if date != "" {
		day, err := time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			return filter, fmt.Errorf("%w: invalid date %q", models.ErrValidation, date)
		}
		filter.Date = &day
	}

	if paymentMethod != "" {
		pm, err := models.ParsePaymentMethod(paymentMethod)
		if err != nil {
			return filter, err
		}
		filter.PaymentMethod = &pm
	}

	filter.ProductName = strings.TrimSpace(product)

	switch SortField(strings.ToLower(sortBy)) {
	case "", SortByDate:
		filter.SortBy = SortByDate
	case SortByAmount:
		filter.SortBy = SortByAmount
	default:
		return filter, fmt.Errorf("%w: invalid sort field %q", models.ErrValidation, sortBy)
	}

	switch strings.ToLower(direction) {
	case "", "desc":
	case "asc":
		filter.Ascending = true
	default:
		return filter, fmt.Errorf("%w: invalid sort direction %q", models.ErrValidation, direction)
	}

	return filter, nil
}

// SalesSummary aggregates a filtered set of sales
type SalesSummary struct {
	Total           decimal.Decimal                          `json:"total"`
	Count           int                                      `json:"count"`
	ByPaymentMethod map[models.PaymentMethod]decimal.Decimal `json:"byPaymentMethod"`
	TopProducts     []ProductSales                           `json:"topProducts"`
}

// ProductSales is one entry of the product ranking
type ProductSales struct {
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Total       decimal.Decimal `json:"total"`
}

// SalesJournal is the append-only record of paid orders. Reversal is the
// only way to take a sale back.
type SalesJournal struct {
	sales    repository.SaleRepository
	location *time.Location
}

// NewSalesJournal creates a journal. Day filters are evaluated in loc.
func NewSalesJournal(sales repository.SaleRepository, loc *time.Location) *SalesJournal {
	if loc == nil {
		loc = time.UTC
	}
	return &SalesJournal{sales: sales, location: loc}
}

// SaleFromOrder snapshots a paid order into a new sale. The sale shares no
// memory with the order.
func SaleFromOrder(order *models.Order, now time.Time) (*models.Sale, error) {
	if order.Status != models.OrderStatusPaid || order.PaymentMethod == nil {
		return nil, fmt.Errorf("%w: order %s is not paid", models.ErrInvalidState, order.ID)
	}

	orderID := order.ID
	sale := &models.Sale{
		ID:            uuid.New().String(),
		OrderID:       &orderID,
		TableID:       order.TableID,
		Items:         make([]models.SaleItem, 0, len(order.Items)),
		TotalAmount:   order.TotalAmount,
		PaymentMethod: *order.PaymentMethod,
		Timestamp:     now,
	}
	for _, item := range order.Items {
		sale.Items = append(sale.Items, models.SaleItem{
			SaleID:        sale.ID,
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			PriceAtSale:   item.PriceAtOrder,
			Quantity:      item.Quantity,
			SendToKitchen: item.SendToKitchen,
		})
	}
	return sale, nil
}

// Record appends a sale
func (j *SalesJournal) Record(ctx context.Context, sale *models.Sale) error {
	if len(sale.Items) == 0 {
		return fmt.Errorf("%w: sale %s has no items", models.ErrValidation, sale.ID)
	}
	return j.sales.CreateSale(ctx, sale)
}

// Get returns one sale
func (j *SalesJournal) Get(ctx context.Context, saleID string) (*models.Sale, error) {
	return j.sales.GetSale(ctx, saleID)
}

// Reverse removes a sale. The originating order stays PAID.
func (j *SalesJournal) Reverse(ctx context.Context, saleID string) error {
	return j.sales.DeleteSale(ctx, saleID)
}

// List returns the sales matching filter in the requested order
func (j *SalesJournal) List(ctx context.Context, filter SalesFilter) ([]models.Sale, error) {
	var from, to *time.Time
	if filter.Date != nil {
		y, m, d := filter.Date.In(j.location).Date()
		start := time.Date(y, m, d, 0, 0, 0, 0, j.location)
		end := start.AddDate(0, 0, 1)
		from, to = &start, &end
	}

	all, err := j.sales.ListSales(ctx, from, to)
	if err != nil {
		return nil, err
	}

	sales := make([]models.Sale, 0, len(all))
	for _, s := range all {
		if filter.PaymentMethod != nil && s.PaymentMethod != *filter.PaymentMethod {
			continue
		}
		if filter.ProductName != "" && !hasProduct(s, filter.ProductName) {
			continue
		}
		sales = append(sales, s)
	}

	sortSales(sales, filter.SortBy, filter.Ascending)
	return sales, nil
}

// Summary aggregates the sales matching filter
func (j *SalesJournal) Summary(ctx context.Context, filter SalesFilter) (*SalesSummary, error) {
	sales, err := j.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return Summarize(sales), nil
}

// Summarize computes totals, payment split and the product ranking
func Summarize(sales []models.Sale) *SalesSummary {
	summary := &SalesSummary{
		Total:           decimal.Zero,
		Count:           len(sales),
		ByPaymentMethod: make(map[models.PaymentMethod]decimal.Decimal, len(models.PaymentMethods)),
		TopProducts:     []ProductSales{},
	}
	for _, pm := range models.PaymentMethods {
		summary.ByPaymentMethod[pm] = decimal.Zero
	}

	byName := make(map[string]*ProductSales)
	for _, s := range sales {
		summary.Total = summary.Total.Add(s.TotalAmount)
		summary.ByPaymentMethod[s.PaymentMethod] = summary.ByPaymentMethod[s.PaymentMethod].Add(s.TotalAmount)

		for _, item := range s.Items {
			ps, ok := byName[item.ProductName]
			if !ok {
				ps = &ProductSales{ProductName: item.ProductName, Total: decimal.Zero}
				byName[item.ProductName] = ps
			}
			ps.Quantity += item.Quantity
			ps.Total = ps.Total.Add(item.Subtotal())
		}
	}

	for _, ps := range byName {
		summary.TopProducts = append(summary.TopProducts, *ps)
	}
	sort.Slice(summary.TopProducts, func(a, b int) bool {
		pa, pb := summary.TopProducts[a], summary.TopProducts[b]
		if pa.Quantity != pb.Quantity {
			return pa.Quantity > pb.Quantity
		}
		return pa.ProductName < pb.ProductName
	})
	if len(summary.TopProducts) > TopProductsLimit {
		summary.TopProducts = summary.TopProducts[:TopProductsLimit]
	}
	return summary
}

func hasProduct(sale models.Sale, name string) bool {
	needle := strings.ToLower(name)
	for _, item := range sale.Items {
		if strings.Contains(strings.ToLower(item.ProductName), needle) {
			return true
		}
	}
	return false
}

func sortSales(sales []models.Sale, by SortField, ascending bool) {
	sort.SliceStable(sales, func(a, b int) bool {
		sa, sb := sales[a], sales[b]
		var cmp int
		if by == SortByAmount {
			cmp = sa.TotalAmount.Cmp(sb.TotalAmount)
		}
		if cmp == 0 {
			switch {
			case sa.Timestamp.Before(sb.Timestamp):
				cmp = -1
			case sa.Timestamp.After(sb.Timestamp):
				cmp = 1
			}
		}
		if ascending {
			return cmp < 0
		}
		return cmp > 0
	})
}
