package designator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	invjsonschema "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "payload.schema.json"

var (
	schemaOnce     sync.Once
	schemaCompiled *jsonschema.Schema
	schemaErr      error
)

// PayloadSchema reflects the JSON schema of Payload from its Go type.
func PayloadSchema() *invjsonschema.Schema {
	r := invjsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	s := r.Reflect(&Payload{})
	s.Title = "Designator Command Payload"
	s.Description = "Self-describing designator command: kind, descriptor, metadata, target, world."
	return s
}

func PayloadSchemaJSON() ([]byte, error) {
	return json.MarshalIndent(PayloadSchema(), "", "  ")
}

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		raw, err := PayloadSchemaJSON()
		if err != nil {
			schemaErr = err
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
			schemaErr = err
			return
		}
		schemaCompiled, schemaErr = c.Compile(schemaURL)
	})
	return schemaCompiled, schemaErr
}

// ValidatePayloadJSON checks raw payload bytes against the reflected schema.
// It runs on replay ingress before Decode.
func ValidatePayloadJSON(b []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("payload schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("payload json: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("payload schema: %w", err)
	}
	return nil
}
