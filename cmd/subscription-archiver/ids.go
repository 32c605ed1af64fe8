package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// loadProductIDs reads a JSON array of product ids.
// Entries may be numbers or strings; order is kept.
func loadProductIDs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ids file: %w", err)
	}

	ids, err := parseProductIDs(data)
	if err != nil {
		return nil, fmt.Errorf("invalid ids file %s: %w", path, err)
	}
	return ids, nil
}

func parseProductIDs(data []byte) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(raw))
	for i, v := range raw {
		switch id := v.(type) {
		case json.Number:
			ids = append(ids, id.String())
		case string:
			if id == "" {
				return nil, fmt.Errorf("entry %d is empty", i)
			}
			ids = append(ids, id)
		default:
			return nil, fmt.Errorf("entry %d is not a number or string", i)
		}
	}
	return ids, nil
}

func readTemplate(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template: %w", err)
	}
	return string(data), nil
}
