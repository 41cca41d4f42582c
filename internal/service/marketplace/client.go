package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"meliseller/internal/domain"
)

// MaxBatchIDs is the largest id list the multi-get endpoint accepts.
const MaxBatchIDs = 20

// Getter fetches one provider resource.
type Getter interface {
	Get(ctx context.Context, path string) (json.RawMessage, error)
}

// Client exposes the seller resources used by the reports.
type Client struct {
	gw       Getter
	sellerID string
}

func NewClient(gw Getter, sellerID string) *Client {
	return &Client{gw: gw, sellerID: sellerID}
}

func (c *Client) getJSON(ctx context.Context, path string, target any) error {
	raw, err := c.gw.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &domain.ParseError{Path: path, Body: string(raw), Err: err}
	}
	return nil
}

// RecentOrders returns the newest orders first.
func (c *Client) RecentOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	q := url.Values{}
	q.Set("seller", c.sellerID)
	q.Set("sort", "date_desc")
	q.Set("limit", fmt.Sprint(limit))
	var page struct {
		Results []domain.Order `json:"results"`
	}
	if err := c.getJSON(ctx, "/orders/search?"+q.Encode(), &page); err != nil {
		return nil, fmt.Errorf("orders: %w", err)
	}
	return page.Results, nil
}

// ListingIDs returns up to limit listing ids and the seller's total listing count.
func (c *Client) ListingIDs(ctx context.Context, limit int) ([]string, int, error) {
	var page struct {
		Results []string `json:"results"`
		Paging  struct {
			Total int `json:"total"`
		} `json:"paging"`
	}
	path := fmt.Sprintf("/users/%s/items/search?limit=%d", url.PathEscape(c.sellerID), limit)
	if err := c.getJSON(ctx, path, &page); err != nil {
		return nil, 0, fmt.Errorf("listings: %w", err)
	}
	total := page.Paging.Total
	if total < len(page.Results) {
		total = len(page.Results)
	}
	return page.Results, total, nil
}

type multiGetEntry struct {
	Code int         `json:"code"`
	Body domain.Item `json:"body"`
}

// Items resolves ids in batches of MaxBatchIDs. Batches run concurrently
// and the result keeps the order of ids; ids the provider cannot resolve
// are left out.
func (c *Client) Items(ctx context.Context, ids []string) ([]domain.Item, error) {
	batches := chunk(ids, MaxBatchIDs)
	results := make([][]domain.Item, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			var entries []multiGetEntry
			if err := c.getJSON(gctx, "/items?ids="+strings.Join(batch, ","), &entries); err != nil {
				return fmt.Errorf("items: %w", err)
			}
			items := make([]domain.Item, 0, len(entries))
			for _, e := range entries {
				if e.Code != http.StatusOK || e.Body.ID == "" {
					continue
				}
				items = append(items, e.Body)
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]domain.Item, 0, len(ids))
	for _, items := range results {
		out = append(out, items...)
	}
	return out, nil
}

// Questions returns buyer questions, newest first.
func (c *Client) Questions(ctx context.Context, limit int) ([]domain.Question, error) {
	q := url.Values{}
	q.Set("seller_id", c.sellerID)
	q.Set("limit", fmt.Sprint(limit))
	q.Set("sort_fields", "date_created")
	q.Set("sort_types", "DESC")
	var page struct {
		Questions []domain.Question `json:"questions"`
	}
	if err := c.getJSON(ctx, "/questions/search?"+q.Encode(), &page); err != nil {
		return nil, fmt.Errorf("questions: %w", err)
	}
	return page.Questions, nil
}

func (c *Client) Seller(ctx context.Context) (domain.SellerProfile, error) {
	var profile domain.SellerProfile
	if err := c.getJSON(ctx, "/users/"+url.PathEscape(c.sellerID), &profile); err != nil {
		return domain.SellerProfile{}, fmt.Errorf("seller: %w", err)
	}
	return profile, nil
}

// ItemVisits returns the visits of one listing over the last days.
func (c *Client) ItemVisits(ctx context.Context, itemID string, days int) (int, error) {
	path := fmt.Sprintf("/items/%s/visits/time_window?last=%d&unit=day", url.PathEscape(itemID), days)
	raw, err := c.gw.Get(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("visits %s: %w", itemID, err)
	}
	return parseVisits(raw), nil
}

// parseVisits reads a flat total_visits field, or sums a per-day results
// array, or sums a date-to-count mapping, in that order.
func parseVisits(raw []byte) int {
	if total := gjson.GetBytes(raw, "total_visits"); total.Exists() {
		return int(total.Int())
	}
	sum := int64(0)
	if results := gjson.GetBytes(raw, "results"); results.IsArray() {
		results.ForEach(func(_, day gjson.Result) bool {
			sum += day.Get("total").Int()
			return true
		})
		return int(sum)
	}
	root := gjson.ParseBytes(raw)
	if root.IsObject() {
		root.ForEach(func(k, v gjson.Result) bool {
			if v.Type == gjson.Number && isDateKey(k.String()) {
				sum += v.Int()
			}
			return true
		})
	}
	return int(sum)
}

// isDateKey reports whether key starts with a YYYY-MM-DD date.
func isDateKey(key string) bool {
	if len(key) < len(time.DateOnly) {
		return false
	}
	_, err := time.Parse(time.DateOnly, key[:len(time.DateOnly)])
	return err == nil
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}
