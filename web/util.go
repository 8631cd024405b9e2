package web

import (
	"io"
	"net/http"

	"github.com/gorilla/schema"
	jsoniter "github.com/json-iterator/go"
)

var (
	schemaDecoder = schema.NewDecoder()

	json = jsoniter.ConfigCompatibleWithStandardLibrary
)

func init() {
	schemaDecoder.IgnoreUnknownKeys(true)
}

type APIError struct {
	Message string `json:"error"`
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		logger.WithError(err).Error("Failed writing json response")
	}
}

// WriteAPIError writes a static inline error message, handlers never expose
// raw internal errors to clients.
func WriteAPIError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, &APIError{Message: msg})
}

// ReadJSON decodes the request body into dst, limited to 1MB.
func ReadJSON(r *http.Request, dst interface{}) error {
	defer io.Copy(io.Discard, r.Body)
	return json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dst)
}

// DecodeQuery decodes url query params into dst using gorilla/schema.
func DecodeQuery(r *http.Request, dst interface{}) error {
	return schemaDecoder.Decode(dst, r.URL.Query())
}
