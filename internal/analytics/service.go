package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

const topN = 5

// Overview summarises ledger activity per entry type together with the
// current balance snapshot.
type Overview struct {
	Totals           []TypeTotal      `json:"totals"`
	TotalStock       int64            `json:"total_stock"`
	Balances         []VariantBalance `json:"balances"`
	InsufficientData bool             `json:"insufficient_data"`
}

// KPIReport is the dashboard KPI payload for a reporting window.
type KPIReport struct {
	From             string         `json:"from"`
	To               string         `json:"to"`
	TotalSales       int64          `json:"total_sales"`
	Turnover         float64        `json:"turnover"`
	BestSeller       *ProductSales  `json:"best_seller,omitempty"`
	TopSellers       []ProductSales `json:"top_sellers"`
	SlowestMovers    []ProductStock `json:"slowest_movers"`
	DailyFlow        []DailyFlow    `json:"daily_flow"`
	InsufficientData bool           `json:"insufficient_data"`
}

// LowStockReport lists variants at or below the threshold.
type LowStockReport struct {
	Threshold int64            `json:"threshold"`
	Variants  []VariantBalance `json:"variants"`
}

// Service computes read-side analytics with a versioned cache in front.
type Service struct {
	repo  Repository
	cache *Cache
}

// NewService constructs the analytics service. cache may be nil.
func NewService(repo Repository, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Cache exposes the underlying cache so writers can bump it.
func (s *Service) Cache() *Cache {
	return s.cache
}

// Overview returns per-type totals across the whole ledger together with
// the current balance snapshot.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	key, err := s.cache.BuildKey(ctx, keyOverview())
	if err != nil {
		return Overview{}, err
	}
	var out Overview
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		var (
			totals   []TypeTotal
			balances []VariantBalance
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			totals, err = s.repo.TotalsByType(gctx, time.Time{}, farFuture())
			return err
		})
		g.Go(func() error {
			var err error
			balances, err = s.repo.Balances(gctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if balances == nil {
			balances = []VariantBalance{}
		}
		overview := Overview{
			Totals:           totals,
			Balances:         balances,
			InsufficientData: len(totals) == 0,
		}
		for _, b := range balances {
			overview.TotalStock += b.CurrentQuantity
		}
		return overview, nil
	})
	return out, err
}

// KPIs computes the dashboard KPIs for the reporting window. An optional
// product name narrows the sales and stock figures to one product. When
// the window holds no sales the report flags insufficient data instead of
// failing.
func (s *Service) KPIs(ctx context.Context, from, to time.Time, product string) (KPIReport, error) {
	fromStr := from.Format("2006-01-02")
	toStr := to.Format("2006-01-02")
	key, err := s.cache.BuildKey(ctx, keyKPI(fromStr, toStr, product))
	if err != nil {
		return KPIReport{}, err
	}
	var out KPIReport
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return s.computeKPIs(ctx, from, to, fromStr, toStr, product)
	})
	return out, err
}

func (s *Service) computeKPIs(ctx context.Context, from, to time.Time, fromStr, toStr, product string) (KPIReport, error) {
	var (
		sales    []ProductSales
		stocks   []ProductStock
		flows    []DailyFlow
		balances []VariantBalance
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sales, err = s.repo.SalesByProduct(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		stocks, err = s.repo.StockByProduct(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		flows, err = s.repo.DailyFlow(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		balances, err = s.repo.Balances(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return KPIReport{}, err
	}

	if product != "" {
		sales = filterSales(sales, product)
		stocks = filterStocks(stocks, product)
	}

	report := KPIReport{
		From:          fromStr,
		To:            toStr,
		TopSellers:    topSellers(sales),
		SlowestMovers: slowestMovers(stocks),
		DailyFlow:     flows,
	}
	for _, s := range sales {
		report.TotalSales += s.Quantity
	}
	if len(sales) == 0 {
		report.InsufficientData = true
		return report, nil
	}
	best := sales[0]
	report.BestSeller = &best
	report.Turnover = turnover(report.TotalSales, balances)
	return report, nil
}

// LowStock lists variants whose balance sits at or below the threshold.
func (s *Service) LowStock(ctx context.Context, threshold int64) (LowStockReport, error) {
	key, err := s.cache.BuildKey(ctx, keyLowStock(threshold))
	if err != nil {
		return LowStockReport{}, err
	}
	var out LowStockReport
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		balances, err := s.repo.Balances(ctx)
		if err != nil {
			return nil, err
		}
		report := LowStockReport{Threshold: threshold, Variants: []VariantBalance{}}
		for _, b := range balances {
			if b.CurrentQuantity <= threshold {
				report.Variants = append(report.Variants, b)
			}
		}
		return report, nil
	})
	return out, err
}

// turnover divides total sales by the average variant balance. Zero stock
// yields zero rather than a division error.
func turnover(totalSales int64, balances []VariantBalance) float64 {
	if len(balances) == 0 {
		return 0
	}
	var sum int64
	for _, b := range balances {
		sum += b.CurrentQuantity
	}
	avg := float64(sum) / float64(len(balances))
	if avg == 0 {
		return 0
	}
	return float64(totalSales) / avg
}

func topSellers(sales []ProductSales) []ProductSales {
	if len(sales) > topN {
		sales = sales[:topN]
	}
	out := make([]ProductSales, len(sales))
	copy(out, sales)
	return out
}

// slowestMovers returns the products sitting on the most stock.
func slowestMovers(stocks []ProductStock) []ProductStock {
	if len(stocks) > topN {
		stocks = stocks[:topN]
	}
	out := make([]ProductStock, len(stocks))
	copy(out, stocks)
	return out
}

func filterSales(sales []ProductSales, product string) []ProductSales {
	out := sales[:0:0]
	for _, s := range sales {
		if s.ProductName == product {
			out = append(out, s)
		}
	}
	return out
}

func filterStocks(stocks []ProductStock, product string) []ProductStock {
	out := stocks[:0:0]
	for _, s := range stocks {
		if s.ProductName == product {
			out = append(out, s)
		}
	}
	return out
}

func farFuture() time.Time {
	return time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
}
