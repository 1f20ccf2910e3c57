package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// readJSONArg reads raw JSON from path, or from stdin if path is "-".
// It validates the bytes parse as JSON before returning them, so a
// malformed file fails fast with a useful message instead of being
// silently posted to the tracker.
func readJSONArg(path string) (json.RawMessage, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(os.Stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("ghstore: read %q: %w", path, err)
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("ghstore: %q is not valid JSON: %w", path, err)
	}
	return json.RawMessage(raw), nil
}

// printJSON renders v as indented JSON to stdout.
func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("ghstore: encode output: %w", err)
	}
	fmt.Println(string(b))
	return nil
}
