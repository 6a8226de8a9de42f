// Package httpapi exposes the board's JSON API over chi. Handlers record
// their result on the request context; the cerr middleware turns it into
// the HTTP response.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mdonan90/ClawController/pkg/cerr"
)

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid request body", err)
	}
	return nil
}

type okResponse struct {
	OK bool `json:"ok"`
}

var ok = okResponse{OK: true}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}
