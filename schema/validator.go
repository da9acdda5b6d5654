package payloadschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed item.schema.json
var itemSchemaJSON string

// Item is one ingest record.
type Item struct {
	Topic       string  `json:"topic"`
	Title       string  `json:"title"`
	ContentText string  `json:"content_text,omitempty"`
	SourceType  string  `json:"source_type,omitempty"`
	SourceURL   *string `json:"source_url,omitempty"`
	FetchedAt   *string `json:"fetched_at,omitempty"`
	Status      string  `json:"status,omitempty"`
}

// FetchedTime parses FetchedAt. A nil result means "now".
func (i Item) FetchedTime() (*time.Time, error) {
	if i.FetchedAt == nil {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(*i.FetchedAt))
	if err != nil {
		return nil, err
	}
	utc := ts.UTC()
	return &utc, nil
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func ValidateItemPayload(payload json.RawMessage) (*Item, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var item Item
	if err := json.Unmarshal(payload, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := validateSemantics(&item); err != nil {
		return nil, err
	}
	return &item, nil
}

// DecodeItems reads a JSON array of ingest items and validates each one.
// Errors name the offending index.
func DecodeItems(r io.Reader) ([]Item, error) {
	var raw []json.RawMessage
	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode item list: %w", err)
	}

	items := make([]Item, 0, len(raw))
	for i, payload := range raw {
		item, err := ValidateItemPayload(payload)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		items = append(items, *item)
	}
	return items, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("item.schema.json", strings.NewReader(itemSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("item.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}
	return value, nil
}

func validateSemantics(item *Item) error {
	if item == nil {
		return fmt.Errorf("payload is nil")
	}
	if strings.TrimSpace(item.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if item.SourceURL != nil {
		trimmed := strings.TrimSpace(*item.SourceURL)
		parsed, err := url.ParseRequestURI(trimmed)
		if err != nil {
			return fmt.Errorf("source_url is not a valid URI: %w", err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("source_url must be http or https")
		}
	}
	if _, err := item.FetchedTime(); err != nil {
		return fmt.Errorf("fetched_at must be RFC3339: %w", err)
	}
	return nil
}
