package quote

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// ResponseSchema returns the JSON schema providers must satisfy when
// answering a quote request. The schema is generated from the wire type so
// it cannot drift from what decodeProviderResponse accepts.
func ResponseSchema() (json.RawMessage, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}

	schema := reflector.Reflect(&ProviderResponse{})
	schema.Title = "QuoteProviderResponse"
	schema.Description = "Message a quote provider sends in reply to a quote_request."

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response schema: %w", err)
	}
	return data, nil
}
