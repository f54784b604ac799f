// Package rpc is a request/reply message bus between services.
//
// A request is published on the channel named after its pattern and carries
// its arguments as a two element array: [payload, tenantId]. The handler
// publishes the reply on "<pattern>.reply" with the same id.
package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pavitra93/go-multi-tenant-blog/shared/utils"
)

// ReplySuffix is appended to a pattern to form its reply channel
const ReplySuffix = ".reply"

// Request is published by a client
type Request struct {
	ID      string          `json:"id"`
	Pattern string          `json:"pattern"`
	Data    json.RawMessage `json:"data"`
}

// Response is published by a server
type Response struct {
	ID         string          `json:"id"`
	Response   json.RawMessage `json:"response,omitempty"`
	Err        *ErrorBody      `json:"err,omitempty"`
	IsDisposed bool            `json:"isDisposed"`
}

// ErrorBody is the wire form of a handler error
type ErrorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Error rebuilds a typed error on the client side
func (e *ErrorBody) Error() error {
	return utils.NewHTTPError(e.Status, e.Message)
}

func errorBody(err error) *ErrorBody {
	status, message := utils.StatusOf(err)
	return &ErrorBody{Status: status, Message: message}
}

// EncodeArgs builds the [payload, tenantId] tuple. An empty tenant leaves the
// second slot out.
func EncodeArgs(payload any, tenantID string) (json.RawMessage, error) {
	args := []any{payload}
	if tenantID != "" {
		args = append(args, tenantID)
	}
	return json.Marshal(args)
}

// DecodeArgs splits the tuple into the payload and the tenant id
func DecodeArgs(data json.RawMessage) (json.RawMessage, string, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, "", utils.WrapHTTPError(http.StatusBadRequest, "Malformed RPC arguments", err)
	}
	if len(args) == 0 {
		return json.RawMessage("null"), "", nil
	}

	var tenantID string
	if len(args) > 1 && string(args[1]) != "null" {
		if err := json.Unmarshal(args[1], &tenantID); err != nil {
			return nil, "", utils.WrapHTTPError(http.StatusBadRequest, "Malformed tenant id", err)
		}
	}
	return args[0], tenantID, nil
}

// Bind decodes a payload into v
func Bind(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return utils.WrapHTTPError(http.StatusBadRequest, fmt.Sprintf("Invalid payload: %v", err), err)
	}
	return nil
}
