package httpstatus

import (
	"encoding/json"
	"io"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}
