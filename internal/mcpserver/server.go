// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes subtrack tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/shopspring/decimal"

	"github.com/starford/subtrack/internal/apperr"
	"github.com/starford/subtrack/internal/models"
	"github.com/starford/subtrack/internal/subservice"
)

// Server wraps the MCP server with subtrack tools.
type Server struct {
	mcp *server.MCPServer
	svc *subservice.Service
}

// New creates a new MCP server with all subtrack tools registered.
func New(svc *subservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"subtrack",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("detect_subscriptions",
		mcp.WithDescription("Run subscription detection over the full transaction history and persist the result. "+
			"Returns counts of created and updated subscriptions."),
	), s.detectSubscriptions)

	s.mcp.AddTool(mcp.NewTool("list_subscriptions",
		mcp.WithDescription("List detected and user-managed subscriptions."),
		mcp.WithString("status", mcp.Description("Optional status filter"),
			mcp.Enum(string(models.StatusInferred), string(models.StatusActive),
				string(models.StatusCancelled), string(models.StatusIgnored))),
	), s.listSubscriptions)

	s.mcp.AddTool(mcp.NewTool("override_subscription",
		mcp.WithDescription("Correct a subscription. Edited fields become user-owned and detection stops changing them. "+
			"Pass clear=true to hand the subscription back to detection. Read the rules first via "+
			"get_detection_rules or the "+RulesURI+" resource."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Subscription id")),
		mcp.WithString("status", mcp.Description("inferred, active, cancelled or ignored")),
		mcp.WithString("interval", mcp.Description("weekly, monthly, yearly or irregular")),
		mcp.WithString("next_expected", mcp.Description("Next charge date, YYYY-MM-DD")),
		mcp.WithString("baseline_amount", mcp.Description("Expected charge amount, e.g. 15.99")),
		mcp.WithBoolean("clear", mcp.Description("Drop the override instead of editing")),
	), s.overrideSubscription)

	s.mcp.AddTool(mcp.NewTool("list_transactions",
		mcp.WithDescription("List recent transactions, newest first."),
		mcp.WithString("vendor", mcp.Description("Optional vendor name or key")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 100)")),
	), s.listTransactions)

	s.mcp.AddTool(mcp.NewTool("add_transaction",
		mcp.WithDescription("Record a manual card transaction. Positive amounts are charges."),
		mcp.WithString("vendor", mcp.Required(), mcp.Description("Vendor name as it appears on the statement")),
		mcp.WithString("amount", mcp.Required(), mcp.Description("Decimal amount, e.g. 15.99")),
		mcp.WithString("date", mcp.Required(), mcp.Description("Charge date, YYYY-MM-DD")),
		mcp.WithString("currency", mcp.Description("ISO currency code")),
	), s.addTransaction)

	s.mcp.AddTool(mcp.NewTool("get_detection_rules",
		mcp.WithDescription("Returns the detection heuristic and its active thresholds."),
	), s.getDetectionRules)

	s.mcp.AddTool(mcp.NewTool("import_document",
		mcp.WithDescription("Import a statement CSV or an invoice from a base64 data: URI or an http(s) URL."),
		mcp.WithString("url", mcp.Required(), mcp.Description("data:text/csv;base64,... or https://...")),
		mcp.WithString("filename", mcp.Description("Optional file name; the extension selects statement or invoice")),
	), s.importDocument)

	s.mcp.AddResource(
		mcp.NewResource(RulesURI, "Detection Rules",
			mcp.WithResourceDescription("How subscriptions are inferred from transactions, with active thresholds."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRulesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found")
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) detectSubscriptions(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep, err := s.svc.Detect(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rep)
}

func (s *Server) listSubscriptions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subs, err := s.svc.ListSubscriptions(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if status := req.GetString("status", ""); status != "" {
		filtered := make([]models.Subscription, 0, len(subs))
		for _, sub := range subs {
			if string(sub.Status) == status {
				filtered = append(filtered, sub)
			}
		}
		subs = filtered
	}
	return jsonResult(subs)
}

func (s *Server) overrideSubscription(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if req.GetBool("clear", false) {
		sub, err := s.svc.ClearOverride(ctx, id)
		if err != nil {
			return toolError(err), nil
		}
		return jsonResult(sub)
	}

	var p subservice.Patch
	if v := req.GetString("status", ""); v != "" {
		st := models.Status(v)
		p.Status = &st
	}
	if v := req.GetString("interval", ""); v != "" {
		iv := models.Interval(v)
		p.Interval = &iv
	}
	if v := req.GetString("next_expected", ""); v != "" {
		d, err := models.ParseDate(v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("next_expected must be YYYY-MM-DD: %s", v)), nil
		}
		p.NextExpected = &d
	}
	if v := req.GetString("baseline_amount", ""); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("baseline_amount is not a number: %s", v)), nil
		}
		p.BaselineAmount = &d
	}
	sub, err := s.svc.Override(ctx, id, p)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(sub)
}

func (s *Server) listTransactions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	txns, err := s.svc.ListTransactions(ctx, req.GetString("vendor", ""), req.GetInt("limit", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(txns)
}

func (s *Server) addTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	vendor, err := req.RequireString("vendor")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawAmount, err := req.RequireString("amount")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rawDate, err := req.RequireString("date")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("amount is not a number: %s", rawAmount)), nil
	}
	date, err := models.ParseDate(rawDate)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("date must be YYYY-MM-DD: %s", rawDate)), nil
	}

	txn, err := s.svc.AddTransaction(ctx, subservice.NewTransaction{
		RawVendorName: vendor,
		Amount:        amount,
		Currency:      req.GetString("currency", ""),
		Date:          date,
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(txn)
}

func (s *Server) getDetectionRules(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RenderRules(s.svc.Engine().Config())), nil
}

func (s *Server) readRulesResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      RulesURI,
			MIMEType: "text/markdown",
			Text:     RenderRules(s.svc.Engine().Config()),
		},
	}, nil
}
