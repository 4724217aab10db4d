package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *PlatformClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *PlatformClient) *Handlers {
	return &Handlers{client: client}
}

// HandleSearchTraders looks up a trader by wallet address.
func (h *Handlers) HandleSearchTraders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wallet := req.GetString("wallet_address", "")
	if wallet == "" {
		return mcp.NewToolResultError("wallet_address is required"), nil
	}

	raw, err := h.client.SearchTrader(ctx, wallet)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to search traders: %v", err)), nil
	}

	var results []map[string]any
	if err := json.Unmarshal(raw, &results); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse search results: %v", err)), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No trader found for wallet %s.", wallet)), nil
	}

	return mcp.NewToolResultText(formatTrader(results[0])), nil
}

// HandleGetTrader returns the full profile for a trader.
func (h *Handlers) HandleGetTrader(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	raw, err := h.client.GetTrader(ctx, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get trader: %v", err)), nil
	}

	var trader map[string]any
	if err := json.Unmarshal(raw, &trader); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse trader: %v", err)), nil
	}

	return mcp.NewToolResultText(formatTrader(trader)), nil
}

// HandleListTopTraders lists traders ordered by reputation.
func (h *Handlers) HandleListTopTraders(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListTraders(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list traders: %v", err)), nil
	}

	text, err := formatTraderList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse traders: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListReviews lists the review history for a trader.
func (h *Handlers) HandleListReviews(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject := req.GetString("subject_address", "")
	if subject == "" {
		return mcp.NewToolResultError("subject_address is required"), nil
	}

	raw, err := h.client.ListReviews(ctx, subject)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list reviews: %v", err)), nil
	}

	text, err := formatReviewList(subject, raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse reviews: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleSubmitReview posts a peer review for a trader.
func (h *Handlers) HandleSubmitReview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subject := req.GetString("subject_address", "")
	if subject == "" {
		return mcp.NewToolResultError("subject_address is required"), nil
	}
	rating := req.GetInt("rating", 0)
	if rating < 1 || rating > 5 {
		return mcp.NewToolResultError("rating must be between 1 and 5"), nil
	}

	reviewer := req.GetString("reviewer_address", "")
	if reviewer == "" {
		reviewer = h.client.cfg.WalletAddress
	}
	if reviewer == "" {
		return mcp.NewToolResultError("reviewer_address is required (no default wallet configured)"), nil
	}

	comment := req.GetString("comment", "")

	raw, err := h.client.SubmitReview(ctx, subject, reviewer, rating, comment)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to submit review: %v", err)), nil
	}

	var resp struct {
		Message string         `json:"message"`
		Review  map[string]any `json:"review"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("Review submitted.\n")
	if resp.Review != nil {
		fmt.Fprintf(&sb, "  Review ID: %s\n", getString(resp.Review, "id"))
		fmt.Fprintf(&sb, "  Subject:   %s\n", getString(resp.Review, "subjectId"))
		if v, ok := getFloat(resp.Review, "rating"); ok {
			fmt.Fprintf(&sb, "  Rating:    %.0f/5\n", v)
		}
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// --- Formatters ---

func formatTrader(m map[string]any) string {
	var sb strings.Builder
	name := getString(m, "name")
	addr := getString(m, "walletAddress")
	fmt.Fprintf(&sb, "Trader: %s (%s)\n", name, addr)

	if v := getString(m, "specialty"); v != "" {
		fmt.Fprintf(&sb, "  Specialty: %s\n", v)
	}
	if v := getString(m, "performance"); v != "" {
		fmt.Fprintf(&sb, "  Performance: %s\n", v)
	}
	if v, ok := getFloat(m, "averageRating"); ok {
		fmt.Fprintf(&sb, "  Average Rating: %.2f/5\n", v)
	}
	if v, ok := getFloat(m, "reviewCount"); ok {
		fmt.Fprintf(&sb, "  Reviews: %.0f\n", v)
	}
	if tier := getString(m, "certification"); tier != "" {
		fmt.Fprintf(&sb, "  Certification: %s\n", tier)
		if tx := getString(m, "certificationTx"); tx != "" {
			fmt.Fprintf(&sb, "  Credential Tx: %s\n", tx)
		}
	} else {
		sb.WriteString("  Certification: none\n")
	}

	return sb.String()
}

func formatTraderList(raw json.RawMessage) (string, error) {
	var resp struct {
		Traders []map[string]any `json:"traders"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected traders response format")
	}

	if len(resp.Traders) == 0 {
		return "No traders found.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d trader(s):\n\n", len(resp.Traders))
	for i, tr := range resp.Traders {
		name := getString(tr, "name")
		addr := getString(tr, "walletAddress")
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i+1, name, addr)

		rating, _ := getFloat(tr, "averageRating")
		count, _ := getFloat(tr, "reviewCount")
		fmt.Fprintf(&sb, "   Rating: %.2f/5 over %.0f review(s)\n", rating, count)

		if tier := getString(tr, "certification"); tier != "" {
			fmt.Fprintf(&sb, "   Certified: %s\n", tier)
		}
	}
	return sb.String(), nil
}

func formatReviewList(subject string, raw json.RawMessage) (string, error) {
	var resp struct {
		Reviews []map[string]any `json:"reviews"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected reviews response format")
	}

	if len(resp.Reviews) == 0 {
		return fmt.Sprintf("No reviews yet for %s.", subject), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d review(s) for %s (newest first):\n\n", len(resp.Reviews), subject)
	for i, r := range resp.Reviews {
		rating, _ := getFloat(r, "rating")
		fmt.Fprintf(&sb, "%d. %.0f/5 from %s", i+1, rating, getString(r, "reviewerId"))
		if at := getString(r, "submittedAt"); at != "" {
			fmt.Fprintf(&sb, " at %s", at)
		}
		sb.WriteString("\n")
		if comment := getString(r, "comment"); comment != "" {
			fmt.Fprintf(&sb, "   %q\n", comment)
		}
	}
	return sb.String(), nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
