package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Quantum Forge MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolSearchTraders = mcp.NewTool("search_traders",
	mcp.WithDescription(
		"Look up a Quantum Forge trader profile by wallet address. "+
			"Returns the trader's name, specialty, average rating, review count, "+
			"and certification tier (Bronze/Silver/Gold) if they hold one."),
	mcp.WithString("wallet_address",
		mcp.Required(),
		mcp.Description("The trader's wallet address (e.g. '0x1234...')")),
)

var ToolGetTrader = mcp.NewTool("get_trader",
	mcp.WithDescription(
		"Get the full profile for a trader, including reputation aggregates "+
			"and the on-chain credential transaction if they are certified."),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The trader's wallet address (e.g. '0x1234...')")),
)

var ToolListTopTraders = mcp.NewTool("list_top_traders",
	mcp.WithDescription(
		"Browse Quantum Forge traders ordered by reputation (highest average rating first). "+
			"Use this to find well-reviewed traders worth following."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of traders to return (default 20)")),
)

var ToolListReviews = mcp.NewTool("list_reviews",
	mcp.WithDescription(
		"List the peer reviews for a trader, newest first. "+
			"Each review has a 1-5 star rating and an optional comment."),
	mcp.WithString("subject_address",
		mcp.Required(),
		mcp.Description("Wallet address of the trader whose reviews to fetch")),
)

var ToolSubmitReview = mcp.NewTool("submit_review",
	mcp.WithDescription(
		"Submit a 1-5 star peer review for a trader. "+
			"The trader's average rating is recomputed from their full review history, "+
			"and crossing a certification threshold triggers an on-chain credential award."),
	mcp.WithString("subject_address",
		mcp.Required(),
		mcp.Description("Wallet address of the trader being reviewed")),
	mcp.WithNumber("rating",
		mcp.Required(),
		mcp.Description("Star rating from 1 (worst) to 5 (best)")),
	mcp.WithString("comment",
		mcp.Description("Optional review comment (max 1000 characters)")),
	mcp.WithString("reviewer_address",
		mcp.Description("Wallet address of the reviewer. Defaults to the configured wallet.")),
)
