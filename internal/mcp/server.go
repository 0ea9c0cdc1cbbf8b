package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/arturoeanton/go-semantic-autofill/internal/domain"
	"github.com/arturoeanton/go-semantic-autofill/internal/service"
)

// Server implements the Model Context Protocol (MCP) server.
// It exposes tools for external AI agents to interact with FormSense.
type Server struct {
	autofillService   *service.AutofillService
	submissionService *service.SubmissionService
	port              string
}

// NewServer creates a new MCP server.
func NewServer(autofillService *service.AutofillService, submissionService *service.SubmissionService, port string) *Server {
	return &Server{
		autofillService:   autofillService,
		submissionService: submissionService,
		port:              port,
	}
}

// Tool represents an MCP tool definition.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Start begins the MCP server on the configured port.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", s.handleRPC)
	mux.HandleFunc("/mcp/sse", s.handleSSE)

	slog.Info("MCP server starting", "port", s.port)
	return http.ListenAndServe(":"+s.port, mux)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, nil, -32700, "parse error")
		return
	}

	var result interface{}
	var err error

	switch req.Method {
	case "tools/list":
		result = s.listTools()
	case "tools/call":
		result, err = s.callTool(r.Context(), req.Params)
	case "initialize":
		result = map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"serverInfo": map[string]string{
				"name":    "formsense",
				"version": "1.0.0",
			},
			"capabilities": map[string]interface{}{
				"tools": map[string]bool{"listChanged": false},
			},
		}
	default:
		writeError(w, req.ID, -32601, "method not found")
		return
	}

	if err != nil {
		writeError(w, req.ID, -32603, err.Error())
		return
	}

	writeResult(w, req.ID, result)
}

func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Send initial endpoint message
	fmt.Fprintf(w, "event: endpoint\ndata: /mcp\n\n")
	w.(http.Flusher).Flush()

	// Keep connection alive
	<-r.Context().Done()
}

func (s *Server) listTools() map[string]interface{} {
	tools := []Tool{
		{
			Name:        "autofill_form",
			Description: "Resolve field values for a set of form field labels using semantic similarity over the user's past submissions",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"user_id": {"type": "string", "description": "User ID to search on behalf of"},
					"keys": {"type": "array", "items": {"type": "string"}, "description": "Form field labels to resolve"},
					"site": {"type": "string", "description": "Restrict matches to this site"},
					"path": {"type": "string", "description": "Restrict matches to this page path"},
					"form_id": {"type": "string", "description": "Restrict matches to this form"},
					"threshold": {"type": "number", "description": "Minimum similarity score, 0 to 1 (default 0.8)"},
					"multiple": {"type": "boolean", "description": "Return a list of candidate values per key"},
					"limit": {"type": "integer", "description": "Max candidates per key when multiple is set"}
				},
				"required": ["user_id", "keys"]
			}`),
		},
		{
			Name:        "list_submissions",
			Description: "List a user's merged form submissions, optionally filtered by site",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"user_id": {"type": "string", "description": "User ID whose submissions to list"},
					"site": {"type": "string", "description": "Only return submissions for this site"}
				},
				"required": ["user_id"]
			}`),
		},
	}
	return map[string]interface{}{"tools": tools}
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var req struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(params, &req); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	switch req.Name {
	case "autofill_form":
		var args struct {
			UserID    string   `json:"user_id"`
			Keys      []string `json:"keys"`
			Site      string   `json:"site"`
			Path      string   `json:"path"`
			FormID    *string  `json:"form_id"`
			Threshold *float64 `json:"threshold"`
			Multiple  bool     `json:"multiple"`
			Limit     int      `json:"limit"`
		}
		json.Unmarshal(req.Arguments, &args)

		threshold := 0.8
		if args.Threshold != nil {
			threshold = *args.Threshold
		}

		suggestions, err := s.autofillService.Autofill(ctx, args.UserID, service.AutofillRequest{
			Keys: args.Keys,
			Scope: domain.AutofillScope{
				Site:   args.Site,
				Path:   args.Path,
				FormID: args.FormID,
			},
			Threshold: threshold,
			Multiple:  args.Multiple,
			Limit:     args.Limit,
		})
		if err != nil {
			return nil, err
		}

		text, _ := json.Marshal(suggestions)
		return map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": string(text)},
			},
		}, nil

	case "list_submissions":
		var args struct {
			UserID string `json:"user_id"`
			Site   string `json:"site"`
		}
		json.Unmarshal(req.Arguments, &args)

		summaries, err := s.submissionService.List(ctx, args.UserID, args.Site)
		if err != nil {
			return nil, err
		}

		text, _ := json.Marshal(summaries)
		return map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": string(text)},
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", req.Name)
	}
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, id interface{}, code int, message string) {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
