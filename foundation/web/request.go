package web

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
)

// Decode reads the body of an HTTP request looking for a JSON document. The
// body is decoded into the provided value.
func Decode(r *http.Request, val any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(val); err != nil {
		return errors.Wrap(err, "unable to decode payload")
	}
	return nil
}
