package proto

import "github.com/invopop/jsonschema"

// Schema describes the envelope for tooling on the other side of the wire.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(Envelope))
	schema.Title = "netsync envelope"
	schema.Description = "Websocket frame exchanged between a participant and the authority."
	return schema
}
