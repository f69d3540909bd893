package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// ResultCode pairs an envelope code with its message.
type ResultCode struct {
	Code    int
	Message string
}

var (
	CodeSuccess         = ResultCode{200, "operation succeeded"}
	CodeBadRequest      = ResultCode{400, "bad request"}
	CodeUnauthorized    = ResultCode{401, "unauthorized"}
	CodeForbidden       = ResultCode{403, "forbidden"}
	CodeNotFound        = ResultCode{404, "resource not found"}
	CodeTooManyRequests = ResultCode{429, "rate limit exceeded"}
	CodeServerError     = ResultCode{500, "internal server error"}
)

// Result is the JSON envelope used by every JSON endpoint.
type Result struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

func newResult(rc ResultCode, data any, at time.Time) Result {
	return Result{
		Code:      rc.Code,
		Message:   rc.Message,
		Data:      data,
		Timestamp: at.UnixMilli(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
