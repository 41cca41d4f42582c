package domain

import "time"

// Credentials is the OAuth token pair held for the seller account.
type Credentials struct {
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`
}

func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// ToolRequest is one tool invocation received over the RPC surface.
type ToolRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

const (
	OrderStatusPaid      = "paid"
	OrderStatusCancelled = "cancelled"

	ItemStatusActive = "active"
	ItemStatusPaused = "paused"

	QuestionStatusUnanswered = "UNANSWERED"
	QuestionStatusAnswered   = "ANSWERED"
)

type Order struct {
	ID          int64       `json:"id"`
	Status      string      `json:"status"`
	TotalAmount float64     `json:"total_amount"`
	DateCreated time.Time   `json:"date_created"`
	OrderItems  []OrderItem `json:"order_items"`
	Buyer       Buyer       `json:"buyer"`
}

type OrderItem struct {
	Item      OrderItemRef `json:"item"`
	Quantity  int          `json:"quantity"`
	UnitPrice float64      `json:"unit_price"`
}

type OrderItemRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type Buyer struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
}

// FirstTitle returns the title of the first line item, or "" when absent.
func (o Order) FirstTitle() string {
	if len(o.OrderItems) == 0 {
		return ""
	}
	return o.OrderItems[0].Item.Title
}

type Item struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	Status            string  `json:"status"`
	Price             float64 `json:"price"`
	AvailableQuantity *int    `json:"available_quantity"`
	SoldQuantity      int     `json:"sold_quantity"`
	Permalink         string  `json:"permalink"`
}

type Question struct {
	ID          int64     `json:"id"`
	ItemID      string    `json:"item_id"`
	Status      string    `json:"status"`
	Text        string    `json:"text"`
	DateCreated time.Time `json:"date_created"`
	Answer      *Answer   `json:"answer"`
}

type Answer struct {
	Text        string    `json:"text"`
	DateCreated time.Time `json:"date_created"`
}

type SellerProfile struct {
	ID         int64            `json:"id"`
	Nickname   string           `json:"nickname"`
	Reputation SellerReputation `json:"seller_reputation"`
}

type SellerReputation struct {
	LevelID           string            `json:"level_id"`
	PowerSellerStatus string            `json:"power_seller_status"`
	Transactions      Transactions      `json:"transactions"`
	Metrics           ReputationMetrics `json:"metrics"`
}

type Transactions struct {
	Completed int `json:"completed"`
	Canceled  int `json:"canceled"`
	Total     int `json:"total"`
}

type ReputationMetrics struct {
	Sales               MetricPeriod `json:"sales"`
	Claims              MetricRate   `json:"claims"`
	Cancellations       MetricRate   `json:"cancellations"`
	DelayedHandlingTime MetricRate   `json:"delayed_handling_time"`
}

type MetricPeriod struct {
	Period    string `json:"period"`
	Completed int    `json:"completed"`
}

type MetricRate struct {
	Period string  `json:"period"`
	Rate   float64 `json:"rate"`
	Value  int     `json:"value"`
}

// Digest is one rendered business digest ready for dispatch.
type Digest struct {
	RunID     string
	Subject   string
	Markdown  string
	CreatedAt time.Time
}
