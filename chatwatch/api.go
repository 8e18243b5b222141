package chatwatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/widgetwatch/chatwatch/internal/linkify"
	"github.com/hazyhaar/widgetwatch/kit"
	"github.com/hazyhaar/widgetwatch/shield"
)

// Version is reported by the MCP server.
const Version = "0.3.0"

// Controller is what the API needs from a running Watcher.
type Controller interface {
	Pages(ctx context.Context) ([]PageStatus, error)
	PageStatus(ctx context.Context, id string) (PageStatus, error)
	ResetPage(ctx context.Context, id string) (PageStatus, error)
}

// API serves page status, resets and the linkify helper over HTTP and MCP.
// Both transports share the same kit endpoints.
type API struct {
	ctrl       Controller
	reservedID string
	logger     *slog.Logger

	status  kit.Endpoint
	reset   kit.Endpoint
	linkify kit.Endpoint
}

type pageReq struct {
	PageID string `json:"page_id"`
}

type linkifyReq struct {
	HTML string `json:"html"`
}

type linkifyResp struct {
	HTML  string `json:"html"`
	Links int    `json:"links"`
}

// NewAPI creates the API. reservedID is the typing indicator id, skipped by
// the linkify endpoint like it is on live pages.
func NewAPI(ctrl Controller, reservedID string, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	a := &API{ctrl: ctrl, reservedID: reservedID, logger: logger}
	wrap := func(name string) kit.Middleware {
		return kit.Chain(kit.Logging(logger, name), kit.Recover())
	}

	a.status = wrap("status")(func(ctx context.Context, req any) (any, error) {
		r := req.(*pageReq)
		if r.PageID == "" {
			return a.ctrl.Pages(ctx)
		}
		return a.ctrl.PageStatus(ctx, r.PageID)
	})
	a.reset = wrap("reset")(func(ctx context.Context, req any) (any, error) {
		r := req.(*pageReq)
		if r.PageID == "" {
			return nil, errors.New("page_id required")
		}
		return a.ctrl.ResetPage(ctx, r.PageID)
	})
	a.linkify = wrap("linkify")(func(_ context.Context, req any) (any, error) {
		r := req.(*linkifyReq)
		out, n, err := linkify.AugmentHTML(r.HTML, a.reservedID)
		if err != nil {
			return nil, err
		}
		return linkifyResp{HTML: out, Links: n}, nil
	})
	return a
}

// Handler returns the HTTP surface, /mcp included.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.APIStack(a.logger) {
		r.Use(mw)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/pages", func(w http.ResponseWriter, r *http.Request) {
			a.serve(w, r, a.status, &pageReq{})
		})
		r.Get("/pages/{id}", func(w http.ResponseWriter, r *http.Request) {
			a.serve(w, r, a.status, &pageReq{PageID: chi.URLParam(r, "id")})
		})
		r.Post("/pages/{id}/reset", func(w http.ResponseWriter, r *http.Request) {
			a.serve(w, r, a.reset, &pageReq{PageID: chi.URLParam(r, "id")})
		})
		r.Post("/linkify", func(w http.ResponseWriter, r *http.Request) {
			var req linkifyReq
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				shield.GetLogger(r.Context()).Debug("chatwatch: api: bad linkify body", "error", err)
				writeError(w, http.StatusBadRequest, err)
				return
			}
			a.serve(w, r, a.linkify, &req)
		})
	})

	srv := a.MCPServer()
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	return r
}

func (a *API) serve(w http.ResponseWriter, r *http.Request, ep kit.Endpoint, req any) {
	ctx := kit.WithTransport(r.Context(), "http")
	resp, err := ep(ctx, req)
	switch {
	case errors.Is(err, ErrPageNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeJSON(w, http.StatusOK, resp)
	}
}

// MCPServer returns a new MCP server with the chatwatch tools registered.
func (a *API) MCPServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "chatwatch", Version: Version}, nil)
	a.RegisterMCP(srv)
	return srv
}

// RegisterMCP registers chatwatch_status, chatwatch_reset and
// chatwatch_linkify on an MCP server.
func (a *API) RegisterMCP(srv *mcp.Server) {
	pageSchema := func(required bool) map[string]any {
		s := map[string]any{
			"type": "object",
			"properties": map[string]any{
				"page_id": map[string]any{"type": "string", "description": "Observed page ID"},
			},
		}
		if required {
			s["required"] = []string{"page_id"}
		}
		return s
	}
	decodePage := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r pageReq
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatwatch_status",
		Description: "Conversation stage of one observed chat page, or of every page when page_id is omitted.",
		InputSchema: pageSchema(false),
	}, a.status, decodePage)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatwatch_reset",
		Description: "Force an observed chat page back to idle and remove its typing indicator.",
		InputSchema: pageSchema(true),
	}, a.reset, decodePage)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "chatwatch_linkify",
		Description: "Rewrite markdown links and bare URLs in an HTML fragment into links that open in a new tab.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"html": map[string]any{"type": "string", "description": "HTML fragment"},
			},
			"required": []string{"html"},
		},
	}, a.linkify, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r linkifyReq
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
