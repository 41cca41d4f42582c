package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"meliseller/internal/domain"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcInvalidParams  = -32602
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxRPCBodyBytes))
	if err != nil {
		writeRPCError(w, nil, rpcParseError, "failed to read request body")
		return
	}
	if body := bytes.TrimSpace(raw); len(body) > 0 && body[0] == '[' {
		if !json.Valid(body) {
			writeRPCError(w, nil, rpcParseError, "parse error")
			return
		}
		writeRPCError(w, nil, rpcInvalidRequest, "batch requests are not supported")
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeRPCError(w, nil, rpcParseError, "parse error")
		return
	}
	if req.Method == "" {
		writeRPCError(w, req.ID, rpcInvalidRequest, "method is required")
		return
	}
	if strings.HasPrefix(req.Method, "notifications/") {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "initialize":
		writeRPCResult(w, req.ID, map[string]interface{}{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]string{"name": ServerName, "version": ServerVersion},
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
		})
	case "tools/list":
		writeRPCResult(w, req.ID, map[string]interface{}{"tools": s.tools.Catalog()})
	case "tools/call":
		var call domain.ToolRequest
		if len(req.Params) == 0 || json.Unmarshal(req.Params, &call) != nil || call.Name == "" {
			writeRPCError(w, req.ID, rpcInvalidParams, "params.name is required")
			return
		}
		writeRPCResult(w, req.ID, s.tools.Call(r.Context(), call))
	default:
		// Unknown methods answer with an empty result rather than an error.
		writeRPCResult(w, req.ID, map[string]interface{}{})
	}
}

func writeRPCResult(w http.ResponseWriter, id json.RawMessage, result interface{}) {
	writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: normalizeID(id), Result: result})
}

func writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, msg string) {
	writeJSON(w, http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: normalizeID(id), Error: &rpcError{Code: code, Message: msg}})
}

func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}
