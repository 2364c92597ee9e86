package pipe

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

// Payload schemas for the GitHub endpoints the client reads.
var (
	repositorySchema = mustCompile("repository")
	contentsSchema   = mustCompile("contents")
	fileSchema       = mustCompile("file")
	releaseSchema    = mustCompile("release")
)

func mustCompile(name string) *jsonschema.Schema {
	path := "schemas/" + name + ".schema.json"
	data, err := schemaFS.ReadFile(path)
	if err != nil {
		panic("pipe: read schema: " + err.Error())
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(path, bytes.NewReader(data)); err != nil {
		panic("pipe: add schema resource: " + err.Error())
	}
	schema, err := compiler.Compile(path)
	if err != nil {
		panic("pipe: compile schema: " + err.Error())
	}
	return schema
}

// validate checks body against schema, returning a *ParseError on mismatch.
func validate(schema *jsonschema.Schema, url string, body []byte) error {
	var instance any
	if err := json.Unmarshal(body, &instance); err != nil {
		return &ParseError{URL: url, Err: fmt.Errorf("decode json: %w", err)}
	}
	if err := schema.Validate(instance); err != nil {
		return &ParseError{URL: url, Err: err}
	}
	return nil
}
