// Package report folds marketplace resources into the seller reports.
// Every report is recomputed per request; nothing here is cached.
package report

import (
	"math"
	"sort"

	"meliseller/internal/domain"
)

// UnknownTitle groups orders whose first line item carries no title.
const UnknownTitle = "unknown"

// TopProductsLimit is the length of the top products list.
const TopProductsLimit = 3

// SalesTotals is the revenue fold over a set of orders.
type SalesTotals struct {
	Revenue float64
	Paid    int
	Total   int
}

// Totals sums total_amount over paid orders. Orders in any other status
// add nothing to Revenue but still count in Total.
func Totals(orders []domain.Order) SalesTotals {
	t := SalesTotals{Total: len(orders)}
	for _, o := range orders {
		if o.Status != domain.OrderStatusPaid {
			continue
		}
		t.Paid++
		t.Revenue += o.TotalAmount
	}
	return t
}

type ProductCount struct {
	Title string
	Count int
}

// TopProducts counts orders per first line-item title and returns the n
// most frequent. Ties keep the order in which titles first appear.
func TopProducts(orders []domain.Order, n int) []ProductCount {
	index := make(map[string]int)
	var counts []ProductCount
	for _, o := range orders {
		title := o.FirstTitle()
		if title == "" {
			title = UnknownTitle
		}
		if i, ok := index[title]; ok {
			counts[i].Count++
			continue
		}
		index[title] = len(counts)
		counts = append(counts, ProductCount{Title: title, Count: 1})
	}
	sort.SliceStable(counts, func(i, j int) bool { return counts[i].Count > counts[j].Count })
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

func CountUnanswered(questions []domain.Question) int {
	n := 0
	for _, q := range questions {
		if q.Status == domain.QuestionStatusUnanswered {
			n++
		}
	}
	return n
}

// OnlyUnanswered keeps the unanswered questions in their original order.
func OnlyUnanswered(questions []domain.Question) []domain.Question {
	out := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if q.Status == domain.QuestionStatusUnanswered {
			out = append(out, q)
		}
	}
	return out
}

// ListingVisits pairs a listing with its visits over the report window.
type ListingVisits struct {
	Item   domain.Item
	Visits int
}

// VisitsRanking lists listings by visits, most visited first.
type VisitsRanking struct {
	Listings []ListingVisits
	Total    int
	Days     int
}

// RankVisits sorts entries by visits descending, keeping the input order
// for equal counts.
func RankVisits(entries []ListingVisits, days int) VisitsRanking {
	ranked := append([]ListingVisits(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Visits > ranked[j].Visits })
	total := 0
	for _, e := range ranked {
		total += e.Visits
	}
	return VisitsRanking{Listings: ranked, Total: total, Days: days}
}

// Share is the percentage of all visits that went to the i-th listing.
func (r VisitsRanking) Share(i int) float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Listings[i].Visits) / float64(r.Total) * 100
}

// BarTicks is the bar length, 0 to 10, of the i-th listing scaled to the
// most visited one.
func (r VisitsRanking) BarTicks(i int) int {
	if len(r.Listings) == 0 || r.Listings[0].Visits == 0 {
		return 0
	}
	return int(math.Round(float64(r.Listings[i].Visits) / float64(r.Listings[0].Visits) * 10))
}

type ListingConversion struct {
	Item   domain.Item
	Visits int
	Rate   float64
}

// ConversionRanking partitions listings into three disjoint buckets.
type ConversionRanking struct {
	Converting  []ListingConversion
	DeadTraffic []ListingConversion
	NoTraffic   []ListingConversion
	Days        int
}

func (c ConversionRanking) Len() int {
	return len(c.Converting) + len(c.DeadTraffic) + len(c.NoTraffic)
}

// ConversionRate is sold units per hundred visits, 0 without visits.
func ConversionRate(sold, visits int) float64 {
	if visits <= 0 {
		return 0
	}
	return float64(sold) / float64(visits) * 100
}

// RankConversion places every listing in exactly one bucket: converting
// (visits and sales), dead traffic (visits, no sales) or no traffic.
// Converting listings are sorted by rate descending.
func RankConversion(entries []ListingVisits, days int) ConversionRanking {
	out := ConversionRanking{Days: days}
	for _, e := range entries {
		lc := ListingConversion{Item: e.Item, Visits: e.Visits, Rate: ConversionRate(e.Item.SoldQuantity, e.Visits)}
		switch {
		case e.Visits <= 0:
			out.NoTraffic = append(out.NoTraffic, lc)
		case lc.Rate > 0:
			out.Converting = append(out.Converting, lc)
		default:
			out.DeadTraffic = append(out.DeadTraffic, lc)
		}
	}
	sort.SliceStable(out.Converting, func(i, j int) bool { return out.Converting[i].Rate > out.Converting[j].Rate })
	sort.SliceStable(out.DeadTraffic, func(i, j int) bool { return out.DeadTraffic[i].Visits > out.DeadTraffic[j].Visits })
	return out
}

// ListingStats is the listings overview: active count and units sold.
type ListingStats struct {
	Active    int
	UnitsSold int
}

func StatsOf(items []domain.Item) ListingStats {
	var s ListingStats
	for _, it := range items {
		if it.Status == domain.ItemStatusActive {
			s.Active++
		}
		s.UnitsSold += it.SoldQuantity
	}
	return s
}
