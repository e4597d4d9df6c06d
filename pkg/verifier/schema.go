package verifier

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed manifest_schema.json
var manifestSchemaJSON []byte

var manifestSchema = mustCompileManifestSchema()

func mustCompileManifestSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := "https://proofpack.schemas.local/manifest.schema.json"
	if err := c.AddResource(schemaURL, bytes.NewReader(manifestSchemaJSON)); err != nil {
		panic(fmt.Sprintf("embedded manifest schema load failed: %v", err))
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("embedded manifest schema compile failed: %v", err))
	}
	return compiled
}

// validateManifestSchema checks the structural shape of manifest.json before
// any hash work. Shape problems are operational errors, not verification
// outcomes; the outcome taxonomy only speaks about the integrity of a
// well-formed bundle.
func validateManifestSchema(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	return manifestSchema.Validate(doc)
}
