package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"meliseller/internal/domain"
)

func TestRenderSummary(t *testing.T) {
	r := NewRenderer("es-AR", "ARS", "Noor Kids")
	out := r.Summary(Summary{
		Sales:           SalesTotals{Revenue: 1234567, Paid: 3, Total: 4},
		Listings:        12,
		Unanswered:      2,
		TopProducts:     []ProductCount{{Title: "Mochila escolar", Count: 2}},
		ReputationLevel: "5_green",
		CompletedSales:  340,
	})
	assert.Contains(t, out, "NOOR KIDS")
	assert.Contains(t, out, "$1.234.567 ARS")
	assert.Contains(t, out, "Paid orders: 3 of 4")
	assert.Contains(t, out, "1. Mochila escolar (2 sales)")
	assert.Contains(t, out, "5_green")
}

func TestRenderSalesEmpty(t *testing.T) {
	r := NewRenderer("es-AR", "ARS", "")
	assert.Equal(t, "No orders found.", r.Sales(SalesReport{}))
}

func TestRenderSalesTruncatesTitles(t *testing.T) {
	r := NewRenderer("es-AR", "ARS", "shop")
	long := "Conjunto deportivo infantil de algodón con capucha y bolsillos laterales"
	out := r.Sales(SalesReport{
		Orders: []domain.Order{{
			Status:      domain.OrderStatusPaid,
			TotalAmount: 2500000,
			DateCreated: time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC),
			OrderItems:  []domain.OrderItem{{Item: domain.OrderItemRef{Title: long}}},
			Buyer:       domain.Buyer{Nickname: "JUAN"},
		}},
		Totals: SalesTotals{Revenue: 2500000, Paid: 1, Total: 1},
	})
	assert.Contains(t, out, "7/3/2025")
	assert.Contains(t, out, string([]rune(long)[:salesTitleWidth]))
	assert.NotContains(t, out, long)
	assert.Contains(t, out, "Buyer: JUAN | $2.500.000 ARS")
}

func TestRenderQuestionsOnlyUnansweredEmpty(t *testing.T) {
	r := NewRenderer("es-AR", "ARS", "")
	assert.Contains(t, r.Questions(QuestionsReport{OnlyUnanswered: true}), "No unanswered questions")
	assert.Equal(t, "No questions found.", r.Questions(QuestionsReport{}))
}

func TestRenderConversionSections(t *testing.T) {
	r := NewRenderer("es-AR", "ARS", "")
	c := RankConversion([]ListingVisits{
		{Item: domain.Item{ID: "A", Title: "Alpha", SoldQuantity: 5}, Visits: 100},
		{Item: domain.Item{ID: "B", Title: "Beta"}, Visits: 30},
		{Item: domain.Item{ID: "C", Title: "Gamma"}},
	}, VisitsWindowDays)
	out := r.Conversion(c)
	assert.Contains(t, out, "Converting")
	assert.Contains(t, out, "Alpha — 5,0%")
	assert.Contains(t, out, "Visits without sales")
	assert.Contains(t, out, "- Beta (30 visits)")
	assert.Contains(t, out, "No traffic")
	assert.Contains(t, out, "- Gamma")
}

func TestRenderVisitsBars(t *testing.T) {
	r := NewRenderer("es-AR", "ARS", "")
	v := RankVisits([]ListingVisits{
		{Item: domain.Item{Title: "Alpha"}, Visits: 50},
		{Item: domain.Item{Title: "Beta"}, Visits: 0},
	}, VisitsWindowDays)
	out := r.Visits(v)
	assert.Contains(t, out, "██████████ 50 (100,0%)")
	assert.Contains(t, out, "░░░░░░░░░░ 0 (0,0%)")
}

func TestRendererFallsBackOnBadLocale(t *testing.T) {
	r := NewRenderer("not a locale!!", "", "")
	assert.Contains(t, r.money(1234567), "1.234.567")
}
