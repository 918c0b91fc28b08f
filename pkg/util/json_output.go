package util

import (
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONOutput provides structured output for CLI operations
type JSONOutput struct {
	Success bool        `json:"success"`
	Error   string      `json:"error,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// PrintJSON outputs data as formatted JSON
func PrintJSON(data interface{}) error {
	return WriteJSON(os.Stdout, data)
}

// WriteJSON writes data to w as indented JSON
func WriteJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// PrintJSONError outputs an error in JSON format
func PrintJSONError(err error) {
	output := JSONOutput{
		Success: false,
		Error:   err.Error(),
	}
	json.NewEncoder(os.Stdout).Encode(output)
}
