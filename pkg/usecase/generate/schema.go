package generate

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/loris/pkg/adapter"
)

// citedResponseFormat constrains the final answer to a JSON object with
// citation metadata and the response text. Citation numbers in the text
// correspond to positions in the citations array.
func citedResponseFormat() *adapter.ResponseFormat {
	falseSchema := func() *jsonschema.Schema {
		return &jsonschema.Schema{Not: &jsonschema.Schema{}}
	}

	return &adapter.ResponseFormat{
		Name: "cited_response",
		Schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"metadata": {
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"citations": {
							Type:  "array",
							Items: &jsonschema.Schema{Type: "string"},
						},
						"images": {
							Type:  "array",
							Items: &jsonschema.Schema{Type: "string"},
						},
					},
					Required:             []string{"citations", "images"},
					AdditionalProperties: falseSchema(),
				},
				"response": {Type: "string"},
			},
			Required:             []string{"metadata", "response"},
			AdditionalProperties: falseSchema(),
		},
	}
}
