package storeapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
)

// ProductQuery mirrors the filters accepted by GET /products/.
// Empty filters are left out of the query string.
type ProductQuery struct {
	Page     int
	Search   string
	Category string
	MinPrice string
	MaxPrice string
}

func (q ProductQuery) Values() url.Values {
	v := url.Values{}
	page := q.Page
	if page < 1 {
		page = 1
	}
	v.Set("page", strconv.Itoa(page))
	if q.Search != "" {
		v.Set("search", q.Search)
	}
	if q.Category != "" {
		v.Set("category", q.Category)
	}
	if q.MinPrice != "" {
		v.Set("min_price", q.MinPrice)
	}
	if q.MaxPrice != "" {
		v.Set("max_price", q.MaxPrice)
	}
	return v
}

type addToCartRequest struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

type createOrderRequest struct {
	ShippingAddress string `json:"shipping_address"`
	PaymentMethodID string `json:"payment_method_id"`
}

// APIError is a non-2xx response from the store API.
type APIError struct {
	StatusCode int
	Text       string              // "error" field
	Detail     string              // "detail" field
	Fields     map[string][]string // field validation errors
	Body       string
}

func (e *APIError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("store api error: status %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("store api error: status %d, body: %s", e.StatusCode, e.Body)
}

// Message returns the human-readable part of the response, or "" if the
// body carried none.
func (e *APIError) Message() string {
	if e.Text != "" {
		return e.Text
	}
	if e.Detail != "" {
		return e.Detail
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if msgs := e.Fields[k]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	return ""
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return apiErr
	}
	for key, val := range raw {
		var s string
		if err := json.Unmarshal(val, &s); err == nil {
			switch key {
			case "error":
				apiErr.Text = s
			case "detail":
				apiErr.Detail = s
			default:
				apiErr.addField(key, s)
			}
			continue
		}
		var list []string
		if err := json.Unmarshal(val, &list); err == nil {
			for _, s := range list {
				apiErr.addField(key, s)
			}
		}
	}
	return apiErr
}

func (e *APIError) addField(key, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[key] = append(e.Fields[key], msg)
}

// ErrorMessage extracts the server-provided message from err, falling back
// when err is not an API error or the response carried no message.
func ErrorMessage(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if msg := apiErr.Message(); msg != "" {
			return msg
		}
	}
	return fallback
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
