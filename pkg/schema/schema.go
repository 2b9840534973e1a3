// Package schema validates flag table documents before they are decoded.
package schema

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/open-feature/appflagd/pkg/model"
)

//go:embed flag-table.json
var FlagTableSchema string

var loader = gojsonschema.NewStringLoader(FlagTableSchema)

// Validate checks a raw JSON document against the flag table schema.
func Validate(document []byte) error {
	return validate(gojsonschema.NewBytesLoader(document))
}

// ValidateGo checks an already decoded document, e.g. one read from YAML.
func ValidateGo(document any) error {
	return validate(gojsonschema.NewGoLoader(document))
}

func validate(document gojsonschema.JSONLoader) error {
	result, err := gojsonschema.Validate(loader, document)
	if err != nil {
		return fmt.Errorf("%w: %s", model.ErrParse, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: invalid flag table: %s", model.ErrParse, strings.Join(msgs, "; "))
	}
	return nil
}
