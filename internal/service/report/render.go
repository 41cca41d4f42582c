package report

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"meliseller/internal/domain"
)

const (
	salesTitleWidth   = 50
	summaryTitleWidth = 45
	barWidth          = 10
	dateLayout        = "2/1/2006"
)

// Renderer turns reports into the plain text returned by the tools.
type Renderer struct {
	p        *message.Printer
	currency string
	seller   string
}

// NewRenderer formats numbers with the grouping rules of locale. An
// unparseable locale falls back to es-AR.
func NewRenderer(locale, currency, seller string) *Renderer {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.MustParse("es-AR")
	}
	if seller == "" {
		seller = "your store"
	}
	return &Renderer{p: message.NewPrinter(tag), currency: currency, seller: seller}
}

func (r *Renderer) money(v float64) string {
	s := r.p.Sprintf("%v", number.Decimal(v, number.MaxFractionDigits(2)))
	if r.currency == "" {
		return "$" + s
	}
	return "$" + s + " " + r.currency
}

func (r *Renderer) count(n int) string {
	return r.p.Sprintf("%v", number.Decimal(n))
}

func (r *Renderer) percent(v float64) string {
	return r.p.Sprintf("%v", number.Decimal(v, number.MinFractionDigits(1), number.MaxFractionDigits(1))) + "%"
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width])
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

func (r *Renderer) Sales(rep SalesReport) string {
	if len(rep.Orders) == 0 {
		return "No orders found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📦 **Latest %d orders — %s**\n\n", len(rep.Orders), r.seller)
	fmt.Fprintf(&b, "💰 Revenue: %s\n", r.money(rep.Totals.Revenue))
	fmt.Fprintf(&b, "✅ Paid: %d | Total: %d\n\n---\n\n", rep.Totals.Paid, rep.Totals.Total)
	for _, o := range rep.Orders {
		fmt.Fprintf(&b, "%s **%s** — %s\n", orderMark(o.Status), o.DateCreated.Format(dateLayout), truncate(orDash(o.FirstTitle()), salesTitleWidth))
		fmt.Fprintf(&b, "   Buyer: %s | %s\n\n", orDash(o.Buyer.Nickname), r.money(o.TotalAmount))
	}
	return b.String()
}

func orderMark(status string) string {
	switch status {
	case domain.OrderStatusPaid:
		return "✅"
	case domain.OrderStatusCancelled:
		return "❌"
	default:
		return "⏳"
	}
}

func (r *Renderer) Listings(rep ListingsReport) string {
	if rep.Total == 0 && len(rep.Items) == 0 {
		return "No listings found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🏷️ **Listings — %s** (%s total)\n\n", r.seller, r.count(rep.Total))
	fmt.Fprintf(&b, "✅ Active: %d | 📦 Units sold: %s\n\n---\n\n", rep.Stats.Active, r.count(rep.Stats.UnitsSold))
	for _, it := range rep.Items {
		stock := "—"
		if it.AvailableQuantity != nil {
			stock = r.count(*it.AvailableQuantity)
		}
		fmt.Fprintf(&b, "%s **%s**\n", itemMark(it.Status), orDash(it.Title))
		fmt.Fprintf(&b, "   Price: %s | Stock: %s | Sold: %s\n\n", r.money(it.Price), stock, r.count(it.SoldQuantity))
	}
	return b.String()
}

func itemMark(status string) string {
	switch status {
	case domain.ItemStatusActive:
		return "✅"
	case domain.ItemStatusPaused:
		return "⏸️"
	default:
		return "❌"
	}
}

func (r *Renderer) Questions(rep QuestionsReport) string {
	if len(rep.Questions) == 0 {
		if rep.OnlyUnanswered {
			return "No unanswered questions! 🎉"
		}
		return "No questions found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "💬 **Buyer questions** (%d total)\n", len(rep.Questions))
	fmt.Fprintf(&b, "⚠️ Unanswered: %d\n\n---\n\n", rep.Unanswered)
	for _, q := range rep.Questions {
		mark := "⚠️ UNANSWERED"
		if q.Status == domain.QuestionStatusAnswered {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s — %s\n", mark, q.DateCreated.Format(dateLayout))
		fmt.Fprintf(&b, "**Question:** %s\n", q.Text)
		if q.Answer != nil {
			fmt.Fprintf(&b, "**Your answer:** %s\n", q.Answer.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (r *Renderer) Reputation(p domain.SellerProfile) string {
	rep := p.Reputation
	var b strings.Builder
	fmt.Fprintf(&b, "⭐ **Reputation — %s**\n\n", r.seller)
	fmt.Fprintf(&b, "Level: %s\n", orDash(rep.LevelID))
	if rep.PowerSellerStatus != "" {
		fmt.Fprintf(&b, "Power seller: %s\n", rep.PowerSellerStatus)
	}
	fmt.Fprintf(&b, "Completed sales: %s\n", r.count(rep.Transactions.Completed))
	fmt.Fprintf(&b, "Cancelled sales: %s\n\n", r.count(rep.Transactions.Canceled))
	b.WriteString("📊 **Metrics (last 365 days)**\n")
	fmt.Fprintf(&b, "Sales: %s\n", r.count(rep.Metrics.Sales.Completed))
	fmt.Fprintf(&b, "Claims: %d (%s)\n", rep.Metrics.Claims.Value, r.percent(rep.Metrics.Claims.Rate*100))
	fmt.Fprintf(&b, "Cancellations: %d\n", rep.Metrics.Cancellations.Value)
	fmt.Fprintf(&b, "Delayed handling: %d\n", rep.Metrics.DelayedHandlingTime.Value)
	return b.String()
}

func (r *Renderer) Summary(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 **SUMMARY — %s**\n", strings.ToUpper(r.seller))
	b.WriteString("═══════════════════════\n\n")
	fmt.Fprintf(&b, "💰 **Revenue** (last %d orders)\n", SummaryOrders)
	fmt.Fprintf(&b, "   Total: %s\n", r.money(s.Sales.Revenue))
	fmt.Fprintf(&b, "   Paid orders: %d of %d\n\n", s.Sales.Paid, s.Sales.Total)
	fmt.Fprintf(&b, "🏷️ **Listings**: %s\n\n", r.count(s.Listings))
	fmt.Fprintf(&b, "💬 **Unanswered questions**: %d\n\n", s.Unanswered)
	fmt.Fprintf(&b, "🏆 **Top %d products**\n", TopProductsLimit)
	for i, pc := range s.TopProducts {
		fmt.Fprintf(&b, "   %d. %s (%d sales)\n", i+1, truncate(pc.Title, summaryTitleWidth), pc.Count)
	}
	fmt.Fprintf(&b, "\n⭐ **Reputation**: %s\n", orDash(s.ReputationLevel))
	fmt.Fprintf(&b, "   Historical sales: %s\n", r.count(s.CompletedSales))
	return b.String()
}

func (r *Renderer) Visits(v VisitsRanking) string {
	if len(v.Listings) == 0 {
		return "No listings found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "👀 **Visits, last %d days — %s**\n", v.Days, r.seller)
	fmt.Fprintf(&b, "Total: %s visits across %d listings\n\n", r.count(v.Total), len(v.Listings))
	for i, lv := range v.Listings {
		ticks := v.BarTicks(i)
		bar := strings.Repeat("█", ticks) + strings.Repeat("░", barWidth-ticks)
		fmt.Fprintf(&b, "%d. %s\n   %s %s (%s)\n", i+1, truncate(orDash(lv.Item.Title), salesTitleWidth), bar, r.count(lv.Visits), r.percent(v.Share(i)))
	}
	return b.String()
}

func (r *Renderer) Conversion(c ConversionRanking) string {
	if c.Len() == 0 {
		return "No listings found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🎯 **Conversion, last %d days — %s**\n\n", c.Days, r.seller)
	if len(c.Converting) > 0 {
		b.WriteString("✅ **Converting**\n")
		for i, lc := range c.Converting {
			fmt.Fprintf(&b, "%d. %s — %s (%s sold / %s visits)\n", i+1, truncate(orDash(lc.Item.Title), salesTitleWidth),
				r.percent(lc.Rate), r.count(lc.Item.SoldQuantity), r.count(lc.Visits))
		}
		b.WriteString("\n")
	}
	if len(c.DeadTraffic) > 0 {
		b.WriteString("⚠️ **Visits without sales**\n")
		for _, lc := range c.DeadTraffic {
			fmt.Fprintf(&b, "- %s (%s visits)\n", truncate(orDash(lc.Item.Title), salesTitleWidth), r.count(lc.Visits))
		}
		b.WriteString("\n")
	}
	if len(c.NoTraffic) > 0 {
		b.WriteString("💤 **No traffic**\n")
		for _, lc := range c.NoTraffic {
			fmt.Fprintf(&b, "- %s\n", truncate(orDash(lc.Item.Title), salesTitleWidth))
		}
	}
	return b.String()
}

// DigestSubject is the mail subject of the digest generated at t.
func (r *Renderer) DigestSubject(t time.Time) string {
	return fmt.Sprintf("Weekly summary — %s — %s", r.seller, t.Format("2006-01-02"))
}
