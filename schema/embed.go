package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// MetadataSchemaURL is the $id of the installed metadata schema
const MetadataSchemaURL = "https://nova-ide.dev/schema/installed-metadata.schema.json"

//go:embed installed-metadata.schema.json
var metadataSchema []byte

var (
	compileOnce      sync.Once
	compiledSchema   *jsonschema.Schema
	compileSchemaErr error
)

// GetMetadataSchemaRaw returns the raw installed metadata JSON schema bytes
func GetMetadataSchemaRaw() []byte {
	return metadataSchema
}

// MetadataSchema returns the compiled installed metadata schema
func MetadataSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(metadataSchema))
		if err != nil {
			compileSchemaErr = fmt.Errorf("failed to parse JSON schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(MetadataSchemaURL, doc); err != nil {
			compileSchemaErr = fmt.Errorf("failed to add JSON schema: %w", err)
			return
		}
		compiledSchema, compileSchemaErr = c.Compile(MetadataSchemaURL)
	})
	return compiledSchema, compileSchemaErr
}

// ValidateMetadata validates raw sidecar JSON against the schema
func ValidateMetadata(data []byte) error {
	sch, err := MetadataSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to parse metadata: %w", err)
	}
	return sch.Validate(inst)
}
