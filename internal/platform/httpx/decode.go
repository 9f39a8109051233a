package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// Decode reads a JSON body into dst and validates it. On failure it
// writes the problem response itself and returns false.
func Decode(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		Problem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body")
		return false
	}
	if v != nil {
		if err := v.Struct(dst); err != nil {
			Problem(w, http.StatusUnprocessableEntity, "Validation Failed", err.Error())
			return false
		}
	}
	return true
}
