package proto

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSchemaDescribesEnvelope(t *testing.T) {
	data, err := json.Marshal(Schema())
	if err != nil {
		t.Fatalf("marshal schema: %v", err)
	}
	doc := string(data)
	for _, want := range []string{`"netsync envelope"`, `"ver"`, `"varUpdate"`, `"eventBroadcast"`, `"data"`} {
		if !strings.Contains(doc, want) {
			t.Fatalf("schema missing %s: %s", want, doc)
		}
	}
	// Local-only notifications never cross the wire.
	if strings.Contains(doc, TypePeerJoined) {
		t.Fatalf("schema should not advertise %s", TypePeerJoined)
	}
}
