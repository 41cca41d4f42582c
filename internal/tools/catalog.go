package tools

const (
	ToolConnectAccount  = "connect_account"
	ToolGetSales        = "get_sales"
	ToolGetListings     = "get_listings"
	ToolGetQuestions    = "get_questions"
	ToolGetReputation   = "get_reputation"
	ToolBusinessSummary = "business_summary"
	ToolGetVisits       = "get_visits"
	ToolGetConversion   = "get_conversion"
	ToolSendDigest      = "send_digest"
	ToolAccountStatus   = "account_status"
)

// Tool is one catalog entry as listed to clients.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"inputSchema"`
}

type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

func noInput() InputSchema {
	return InputSchema{Type: "object", Properties: map[string]Property{}}
}

var catalog = []Tool{
	{
		Name:        ToolConnectAccount,
		Description: "Connects the marketplace account. Use it for the first connection or when the token can no longer be refreshed.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"code": {Type: "string", Description: "Authorization code from the redirect URL after granting access. Format: TG-XXXXXXX"},
			},
			Required: []string{"code"},
		},
	},
	{
		Name:        ToolGetSales,
		Description: "Shows the latest orders with revenue and paid totals",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"limit": {Type: "number", Description: "Number of orders to show (max 50, default 20)"},
			},
		},
	},
	{
		Name:        ToolGetListings,
		Description: "Shows the listings with price, stock and units sold",
		InputSchema: noInput(),
	},
	{
		Name:        ToolGetQuestions,
		Description: "Shows buyer questions about the listings",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"only_unanswered": {Type: "boolean", Description: "When true, only unanswered questions are shown"},
			},
		},
	},
	{
		Name:        ToolGetReputation,
		Description: "Shows the seller reputation, ratings and metrics",
		InputSchema: noInput(),
	},
	{
		Name:        ToolBusinessSummary,
		Description: "Shows a business summary: revenue, top products, listings and pending questions",
		InputSchema: noInput(),
	},
	{
		Name:        ToolGetVisits,
		Description: "Ranks listings by visits over the last 30 days",
		InputSchema: noInput(),
	},
	{
		Name:        ToolGetConversion,
		Description: "Ranks listings by conversion rate and flags listings with visits but no sales",
		InputSchema: noInput(),
	},
	{
		Name:        ToolSendDigest,
		Description: "Builds the business digest now and sends it to the configured recipients",
		InputSchema: noInput(),
	},
	{
		Name:        ToolAccountStatus,
		Description: "Shows whether the account is connected and when the token was last refreshed",
		InputSchema: noInput(),
	},
}

// Catalog returns the static tool list.
func Catalog() []Tool {
	out := make([]Tool, len(catalog))
	copy(out, catalog)
	return out
}
