package chart

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/aretw0/docflow/pkg/domain"
	"github.com/mitchellh/mapstructure"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed chart.schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// Parse decodes a raw chart definition (YAML or JSON).
// Documents that do not match the chart schema yield a *domain.ConfigurationError.
// When the document has no name, name is used.
func Parse(name string, raw []byte) (*domain.Chart, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, &domain.ConfigurationError{Chart: name, Reason: "malformed definition", Err: err}
	}
	if len(doc) == 0 {
		return nil, &domain.ConfigurationError{Chart: name, Reason: "empty definition"}
	}

	if err := checkSchema(name, doc); err != nil {
		return nil, err
	}

	var c domain.Chart
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &c,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(doc); err != nil {
		return nil, &domain.ConfigurationError{Chart: name, Reason: "cannot decode definition", Err: err}
	}
	if c.Name == "" {
		c.Name = name
	}
	return &c, nil
}

func checkSchema(name string, doc map[string]any) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &domain.ConfigurationError{Chart: name, Reason: "schema check failed", Err: err}
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.String())
	}
	return &domain.ConfigurationError{
		Chart:    name,
		Location: errs[0].Field(),
		Reason:   fmt.Sprintf("does not match the chart schema: %s", strings.Join(msgs, "; ")),
	}
}
