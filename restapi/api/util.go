package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
)

// OutputResponse is the success body of the command endpoints.
type OutputResponse struct {
	Output string `json:"output"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// decodeBody reads the request body as a JSON object. An empty body is an empty object.
// Numbers are kept as json.Number so coordinates can be echoed exactly as sent.
func decodeBody(c *gin.Context) (map[string]any, error) {
	body := map[string]any{}
	if c.Request.Body == nil {
		return body, nil
	}
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return body, nil
		}
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	if v == nil {
		return body, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("invalid JSON body: expected an object")
	}
	return obj, nil
}
