package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/script-bridge/config"
	"github.com/wippyai/script-bridge/engine"
	"github.com/wippyai/script-bridge/errors"
)

const manifestSchemaURL = "manifest.schema.json"

func generateSchema(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true,
	}
	data, err := json.MarshalIndent(reflector.Reflect(v), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

func printSchemas(w io.Writer) error {
	for _, s := range []struct {
		title string
		v     any
	}{
		{"config", &config.Config{}},
		{"class manifest", &engine.Manifest{}},
	} {
		data, err := generateSchema(s.v)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "# %s\n%s\n", s.title, data); err != nil {
			return err
		}
	}
	return nil
}

// checkManifest validates YAML manifest text against the schema generated
// from engine.Manifest. It reports structural problems before the manifest
// is bound to a module.
func checkManifest(data []byte) error {
	schemaJSON, err := generateSchema(&engine.Manifest{})
	if err != nil {
		return err
	}

	compiler := validator.NewCompiler()
	if err := compiler.AddResource(manifestSchemaURL, bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("add manifest schema: %w", err)
	}
	sch, err := compiler.Compile(manifestSchemaURL)
	if err != nil {
		return fmt.Errorf("compile manifest schema: %w", err)
	}

	// Round-trip through JSON so numbers and maps have the types the
	// validator expects.
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.ParseFailed("class manifest", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.ParseFailed("class manifest", err)
	}
	var obj any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return errors.ParseFailed("class manifest", err)
	}

	if err := sch.Validate(obj); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "class manifest does not match schema")
	}
	return nil
}
