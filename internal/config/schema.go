package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

const schemaURL = "tilestream://config.schema.json"

//go:embed config.schema.json
var schemaJSON []byte

var (
	compiledSchema *jsonschema.Schema
	compileErr     error
	compileOnce    sync.Once
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			compileErr = err
			return
		}
		compiledSchema, compileErr = c.Compile(schemaURL)
	})
	return compiledSchema, compileErr
}

// validateDocument decodes raw YAML into plain JSON values and checks it
// against the embedded schema.
func validateDocument(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return errors.Wrap(err, "decode config")
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "convert config")
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var value any
	if err = dec.Decode(&value); err != nil {
		return errors.Wrap(err, "convert config")
	}

	s, err := schema()
	if err != nil {
		return errors.Wrap(err, "compile config schema")
	}
	if err = s.Validate(value); err != nil {
		return errors.Wrapf(ErrSchema, "%v", err)
	}
	return nil
}
