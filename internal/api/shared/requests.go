package shared

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Shared validator instance for request structs.
var validate = validator.New()

// DecodeJSON decodes the request body into v, rejecting unknown fields
// so typos in client payloads surface as 400s instead of silent drops.
func DecodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// ValidateRequest runs struct-tag validation on v.
func ValidateRequest(v interface{}) error {
	return validate.Struct(v)
}
