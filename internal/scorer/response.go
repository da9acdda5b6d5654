package scorer

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed response.schema.json
var responseSchemaJSON string

type assessment struct {
	Score        float64 `json:"score"`
	SummaryShort string  `json:"summary_short"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// parseAssessment extracts the JSON object from a model reply and validates it.
// Models often wrap the object in markdown fences or chatter, which is dropped.
func parseAssessment(raw string) (assessment, error) {
	payload, err := extractJSONObject(raw)
	if err != nil {
		return assessment{}, err
	}

	value, err := decodeStrictJSON([]byte(payload))
	if err != nil {
		return assessment{}, fmt.Errorf("decode assessment JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return assessment{}, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return assessment{}, fmt.Errorf("assessment validation failed: %w", err)
	}

	var parsed assessment
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return assessment{}, fmt.Errorf("unmarshal assessment: %w", err)
	}
	parsed.SummaryShort = strings.TrimSpace(parsed.SummaryShort)
	if parsed.SummaryShort == "" {
		return assessment{}, fmt.Errorf("summary_short must not be empty")
	}
	return parsed, nil
}

func extractJSONObject(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object in scorer reply")
	}
	return text[start : end+1], nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("assessment.schema.json", strings.NewReader(responseSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("assessment.schema.json")
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
