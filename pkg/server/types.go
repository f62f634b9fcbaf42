package server

import "dmkit-hq/dmkit/pkg/policy/model"

// ResolveRequest is the body of POST /v1/dm/resolve.
type ResolveRequest struct {
	// LogID identifies the request. It is prefixed with "dmkit_"; an empty
	// id is replaced by a generated one.
	LogID string `json:"log_id"`

	// Product selects the rule set product. Empty falls back to the
	// "product" param, then "default".
	Product string `json:"product"`

	// Query is the user utterance. It is required.
	Query *string `json:"query"`

	// QU holds the query-understanding results, one per domain.
	QU []*model.QUResult `json:"qu"`

	// Session is the session returned by the previous turn.
	Session model.Session `json:"session"`

	// Params are request parameters visible to templates and functions.
	Params map[string]string `json:"params"`
}

// ResolveResponse is the body of every /v1/dm/resolve reply.
type ResolveResponse struct {
	ErrorCode int                   `json:"error_code"`
	ErrorMsg  string                `json:"error_msg,omitempty"`
	LogID     string                `json:"log_id,omitempty"`
	Result    *model.ResolvedOutput `json:"result,omitempty"`
}

// Error codes and messages.
const (
	CodeOK    = 0
	CodeError = -1

	MsgResolveFailed = "DM policy resolve failed"
	MsgMissingQuery  = "Missing query"
	MsgInvalidBody   = "Invalid request body"
	MsgInternal      = "Internal error"
	MsgRateLimited   = "Too many requests"
	MsgForbidden     = "Product not allowed"
)
