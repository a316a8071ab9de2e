package relay

import (
	"github.com/tidwall/gjson"
)

// emptyBody is what an empty or unparsable response body is folded into.
var emptyBody = []byte("{}")

// Outcome is the result of exactly one relay call. A transport failure and a
// non-2xx response are both failures; only OK outcomes carry a payload the
// caller should act on.
type Outcome struct {
	OK      bool
	Status  int
	Body    []byte
	Message string
	Code    string
	Err     error
}

// Success builds a successful outcome around an already-parsed body.
func Success(status int, body []byte) Outcome {
	return Outcome{OK: true, Status: status, Body: normalizeBody(body)}
}

// Failure builds a failed outcome. err is non-nil only for transport failures.
func Failure(status int, body []byte, message, code string, err error) Outcome {
	return Outcome{
		Status:  status,
		Body:    normalizeBody(body),
		Message: message,
		Code:    code,
		Err:     err,
	}
}

// Transport reports whether the call never produced an HTTP response.
func (o Outcome) Transport() bool {
	return o.Err != nil
}

// Get looks up a gjson path in the response body.
func (o Outcome) Get(path string) gjson.Result {
	return gjson.GetBytes(o.Body, path)
}

// Data returns the raw JSON at the "data" key, or nil when absent.
func (o Outcome) Data() []byte {
	r := o.Get("data")
	if !r.Exists() || !r.IsObject() {
		return nil
	}
	return []byte(r.Raw)
}

// normalizeBody returns body when it is a JSON object or array and "{}"
// otherwise.
func normalizeBody(body []byte) []byte {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return emptyBody
	}
	r := gjson.ParseBytes(body)
	if !r.IsObject() && !r.IsArray() {
		return emptyBody
	}
	return body
}
