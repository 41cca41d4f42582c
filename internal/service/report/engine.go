package report

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"meliseller/internal/domain"
)

const (
	SummaryOrders      = 50
	DefaultSalesLimit  = 20
	MaxSalesLimit      = 50
	ListingsLimit      = 50
	QuestionsLimit     = 50
	MaxRankedListings  = 20
	VisitsWindowDays   = 30
	visitLookupWorkers = 8
)

// Source is the set of marketplace fetchers the engine folds over.
type Source interface {
	RecentOrders(ctx context.Context, limit int) ([]domain.Order, error)
	ListingIDs(ctx context.Context, limit int) ([]string, int, error)
	Items(ctx context.Context, ids []string) ([]domain.Item, error)
	Questions(ctx context.Context, limit int) ([]domain.Question, error)
	Seller(ctx context.Context) (domain.SellerProfile, error)
	ItemVisits(ctx context.Context, itemID string, days int) (int, error)
}

type Engine struct {
	src Source
	log logrus.FieldLogger
	now func() time.Time
}

func NewEngine(src Source, log logrus.FieldLogger) *Engine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine{src: src, log: log.WithField("component", "report"), now: time.Now}
}

type SalesReport struct {
	Orders []domain.Order
	Totals SalesTotals
}

// Sales reports the latest orders. limit is clamped to 1..MaxSalesLimit,
// with 0 meaning DefaultSalesLimit.
func (e *Engine) Sales(ctx context.Context, limit int) (SalesReport, error) {
	switch {
	case limit <= 0:
		limit = DefaultSalesLimit
	case limit > MaxSalesLimit:
		limit = MaxSalesLimit
	}
	orders, err := e.src.RecentOrders(ctx, limit)
	if err != nil {
		return SalesReport{}, err
	}
	return SalesReport{Orders: orders, Totals: Totals(orders)}, nil
}

type ListingsReport struct {
	Total int
	Items []domain.Item
	Stats ListingStats
}

func (e *Engine) Listings(ctx context.Context) (ListingsReport, error) {
	ids, total, err := e.src.ListingIDs(ctx, ListingsLimit)
	if err != nil {
		return ListingsReport{}, err
	}
	if len(ids) == 0 {
		return ListingsReport{Total: total}, nil
	}
	items, err := e.src.Items(ctx, ids)
	if err != nil {
		return ListingsReport{}, err
	}
	return ListingsReport{Total: total, Items: items, Stats: StatsOf(items)}, nil
}

type QuestionsReport struct {
	Questions      []domain.Question
	Unanswered     int
	OnlyUnanswered bool
}

// Questions applies the unanswered filter before counting.
func (e *Engine) Questions(ctx context.Context, onlyUnanswered bool) (QuestionsReport, error) {
	qs, err := e.src.Questions(ctx, QuestionsLimit)
	if err != nil {
		return QuestionsReport{}, err
	}
	if onlyUnanswered {
		qs = OnlyUnanswered(qs)
	}
	return QuestionsReport{Questions: qs, Unanswered: CountUnanswered(qs), OnlyUnanswered: onlyUnanswered}, nil
}

func (e *Engine) Reputation(ctx context.Context) (domain.SellerProfile, error) {
	return e.src.Seller(ctx)
}

// Summary is the business overview behind the summary tool and the digest.
type Summary struct {
	Sales           SalesTotals
	Listings        int
	Unanswered      int
	TopProducts     []ProductCount
	ReputationLevel string
	CompletedSales  int
	GeneratedAt     time.Time
}

// Summary fetches orders, listings, questions and the seller profile
// concurrently and folds them once all four have returned.
func (e *Engine) Summary(ctx context.Context) (Summary, error) {
	var (
		orders    []domain.Order
		listings  int
		questions []domain.Question
		profile   domain.SellerProfile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		orders, err = e.src.RecentOrders(gctx, SummaryOrders)
		return err
	})
	g.Go(func() error {
		ids, total, err := e.src.ListingIDs(gctx, ListingsLimit)
		listings = max(total, len(ids))
		return err
	})
	g.Go(func() (err error) {
		questions, err = e.src.Questions(gctx, QuestionsLimit)
		return err
	})
	g.Go(func() (err error) {
		profile, err = e.src.Seller(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}

	return Summary{
		Sales:           Totals(orders),
		Listings:        listings,
		Unanswered:      CountUnanswered(questions),
		TopProducts:     TopProducts(orders, TopProductsLimit),
		ReputationLevel: profile.Reputation.LevelID,
		CompletedSales:  profile.Reputation.Transactions.Completed,
		GeneratedAt:     e.now().UTC(),
	}, nil
}

// Visits ranks up to MaxRankedListings listings by their visits over the
// last VisitsWindowDays days.
func (e *Engine) Visits(ctx context.Context) (VisitsRanking, error) {
	entries, err := e.listingVisits(ctx)
	if err != nil {
		return VisitsRanking{}, err
	}
	return RankVisits(entries, VisitsWindowDays), nil
}

func (e *Engine) Conversion(ctx context.Context) (ConversionRanking, error) {
	entries, err := e.listingVisits(ctx)
	if err != nil {
		return ConversionRanking{}, err
	}
	return RankConversion(entries, VisitsWindowDays), nil
}

// listingVisits resolves the first MaxRankedListings listings and looks up
// their visits in parallel. A failed lookup counts as zero visits for that
// listing and does not fail the report.
func (e *Engine) listingVisits(ctx context.Context) ([]ListingVisits, error) {
	ids, _, err := e.src.ListingIDs(ctx, ListingsLimit)
	if err != nil {
		return nil, err
	}
	if len(ids) > MaxRankedListings {
		ids = ids[:MaxRankedListings]
	}
	if len(ids) == 0 {
		return nil, nil
	}
	items, err := e.src.Items(ctx, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]ListingVisits, len(items))
	var g errgroup.Group
	g.SetLimit(visitLookupWorkers)
	for i, it := range items {
		i, it := i, it
		entries[i].Item = it
		g.Go(func() error {
			visits, err := e.src.ItemVisits(ctx, it.ID, VisitsWindowDays)
			if err != nil {
				e.log.WithFields(logrus.Fields{"item_id": it.ID, "error": err}).Warn("visit lookup failed, counting zero")
				return nil
			}
			entries[i].Visits = visits
			return nil
		})
	}
	_ = g.Wait()
	return entries, nil
}
