package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/leonletto/carlot/internal/apperr"
)

// JSON-RPC 2.0 error codes. The -320xx range carries the application error
// kinds; the kind itself is always repeated in Error.Data.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeUnauthorized       = -32001
	CodeForbidden          = -32003
	CodeNotFound           = -32004
	CodeStorage            = -32005
	CodeFeatureUnavailable = -32006
	CodeRateLimited        = -32029
)

// Handler is a function that handles a JSON-RPC request.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string           `json:"jsonrpc"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
	ID      *json.RawMessage `json:"id,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *Error           `json:"error,omitempty"`
	ID      *json.RawMessage `json:"id,omitempty"`
}

// Error is a JSON-RPC 2.0 error object. It implements error so clients can
// return it directly.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData is the machine-readable part of an error response.
type ErrorData struct {
	Kind      apperr.Kind       `json:"kind"`
	Status    int               `json:"status"`
	Retryable bool              `json:"retryable,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Detail    string            `json:"detail,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != nil && e.Data.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Data.Detail)
	}
	return e.Message
}

// Kind returns the application error kind, or KindInternal when the error
// carries no data.
func (e *Error) Kind() apperr.Kind {
	if e.Data == nil {
		return apperr.KindInternal
	}
	return e.Data.Kind
}

// Is lets errors.Is(err, apperr.ErrNotFound) work on the client side.
func (e *Error) Is(target error) bool {
	t, ok := target.(*apperr.Error)
	return ok && t.Kind == e.Kind()
}

func codeFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return CodeInvalidParams
	case apperr.KindUnauthorized:
		return CodeUnauthorized
	case apperr.KindForbidden:
		return CodeForbidden
	case apperr.KindNotFound:
		return CodeNotFound
	case apperr.KindStorage:
		return CodeStorage
	case apperr.KindFeatureUnavailable:
		return CodeFeatureUnavailable
	case apperr.KindRateLimited:
		return CodeRateLimited
	default:
		return CodeInternalError
	}
}

// ErrorFrom converts a handler error into a JSON-RPC error object.
func ErrorFrom(err error) *Error {
	kind := apperr.KindOf(err)
	return &Error{
		Code:    codeFor(kind),
		Message: err.Error(),
		Data: &ErrorData{
			Kind:      kind,
			Status:    kind.Status(),
			Retryable: kind.Retryable(),
			Fields:    apperr.FieldsOf(err),
		},
	}
}

func protocolError(code int, message, detail string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Data:    &ErrorData{Kind: apperr.KindValidation, Status: 400, Detail: detail},
	}
}

// ParseErrorResponse is the response for an unparseable request.
func ParseErrorResponse(err error) Response {
	return Response{JSONRPC: "2.0", Error: protocolError(CodeParseError, "Parse error", err.Error())}
}

// InvalidRequestResponse is the response for a structurally invalid request.
func InvalidRequestResponse(id *json.RawMessage, detail string) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: protocolError(CodeInvalidRequest, "Invalid request", detail)}
}

// Observer receives one callback per dispatched request. Kind is "ok" or
// the apperr kind of the failure.
type Observer func(method, transport, kind string, elapsed time.Duration)

// Router maps method names to handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	timeout  time.Duration
	observe  Observer
}

// NewRouter creates an empty router. A positive timeout bounds each call.
func NewRouter(timeout time.Duration) *Router {
	return &Router{
		handlers: make(map[string]Handler),
		timeout:  timeout,
		observe:  func(string, string, string, time.Duration) {},
	}
}

// SetObserver installs a per-request hook. Call before serving.
func (r *Router) SetObserver(o Observer) {
	if o != nil {
		r.observe = o
	}
}

// Register adds a handler for method, replacing any existing one.
func (r *Router) Register(method string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = h
}

// Lookup returns the handler for method.
func (r *Router) Lookup(method string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	return h, ok
}

// Methods returns the registered method names, sorted.
func (r *Router) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Call runs one method directly, without the envelope. In-process callers
// such as the MCP server use it.
func (r *Router) Call(ctx context.Context, t Transport, method string, params any) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	id := json.RawMessage("1")
	resp := r.Dispatch(ctx, t, Request{JSONRPC: "2.0", Method: method, Params: raw, ID: &id})
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// Dispatch validates the envelope, runs the handler under the router's
// timeout and builds the response.
func (r *Router) Dispatch(ctx context.Context, t Transport, req Request) Response {
	if req.JSONRPC != "2.0" {
		return InvalidRequestResponse(req.ID, "jsonrpc field must be '2.0'")
	}

	handler, ok := r.Lookup(req.Method)
	if !ok {
		return Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   protocolError(CodeMethodNotFound, "Method not found", fmt.Sprintf("method '%s' is not registered", req.Method)),
		}
	}

	// Clients may omit params entirely.
	params := req.Params
	if len(params) == 0 || string(params) == "null" {
		params = json.RawMessage("{}")
	}

	ctx = NewContext(ctx, t)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := handler(ctx, params)
	elapsed := time.Since(start)

	if err != nil {
		rpcErr := ErrorFrom(err)
		r.observe(req.Method, t.String(), string(rpcErr.Data.Kind), elapsed)
		if rpcErr.Data.Kind == apperr.KindInternal || rpcErr.Data.Kind == apperr.KindStorage {
			log.Printf("rpc: %s failed: %v", req.Method, err)
		}
		return Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		r.observe(req.Method, t.String(), string(apperr.KindInternal), elapsed)
		return Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &Error{Code: CodeInternalError, Message: "Internal error", Data: &ErrorData{Kind: apperr.KindInternal, Status: 500, Detail: err.Error()}},
		}
	}

	r.observe(req.Method, t.String(), "ok", elapsed)
	return Response{JSONRPC: "2.0", ID: req.ID, Result: resultJSON}
}
