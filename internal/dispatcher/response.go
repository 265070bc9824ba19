package dispatcher

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Values are the addresses published for a host, as returned to clients.
type Values struct {
	Host string `json:"host"`
	IPv4 string `json:"ipv4,omitempty"`
	IPv6 string `json:"ipv6,omitempty"`
}

// Response is the reply to an update request. It is a success carrying
// Values or an error carrying Title and Detail.
type Response struct {
	Code   int
	Title  string
	Detail string
	Values *Values
}

// Success returns a 200 response for v.
func Success(v Values) Response {
	return Response{Code: http.StatusOK, Values: &v}
}

// Failure returns an error response.
func Failure(code int, title, detail string) Response {
	return Response{Code: code, Title: title, Detail: detail}
}

// Status returns the HTTP status of the response.
func (r Response) Status() int {
	if r.Code == 0 {
		return http.StatusInternalServerError
	}
	return r.Code
}

// OK reports whether r is a success response.
func (r Response) OK() bool {
	return r.Values != nil
}

// MarshalJSON renders {"code":"200","values":{...}} for a success and
// {"code":<int>,"title":...,"detail":...} for an error.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Values != nil {
		return json.Marshal(struct {
			Code   string  `json:"code"`
			Values *Values `json:"values"`
		}{strconv.Itoa(r.Status()), r.Values})
	}
	return json.Marshal(struct {
		Code   int    `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}{r.Status(), r.Title, r.Detail})
}
