package protocol

import "testing"

func TestEncodeDecodeRoundTripSingle(t *testing.T) {
	msg := &Single{
		Envelope: Envelope{MsgType: TypeSingle, From: 1, Dest: 2, Routing: RoutingSingle},
		Msg:      "hello",
	}
	data, err := Encode(msg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	single, ok := got.(*Single)
	if !ok {
		t.Fatalf("expected *Single, got %T", got)
	}
	if single.Msg != "hello" || single.Header().From != 1 || single.Header().Dest != 2 {
		t.Fatalf("unexpected round trip: %+v", single)
	}
}

func TestDecodeDispatchesGatewayTypes(t *testing.T) {
	ack := &GatewayAck{
		Envelope: Envelope{MsgType: TypeGatewayAck, From: 10},
		MsgID:    42,
		Success:  true,
		HTTP:     200,
	}
	data, err := Encode(ack)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	decoded, ok := got.(*GatewayAck)
	if !ok || decoded.MsgID != 42 || decoded.HTTP != 200 {
		t.Fatalf("unexpected gateway ack decode: %+v (%T)", got, got)
	}
}

func TestDecodeFallsBackToPluginPackage(t *testing.T) {
	data := []byte(`{"type":42,"from":1,"dest":0,"routing":2,"payload":{"foo":"bar"}}`)
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	plugin, ok := got.(*PluginPackage)
	if !ok {
		t.Fatalf("expected *PluginPackage, got %T", got)
	}
	if plugin.Header().MsgType != 42 {
		t.Fatalf("expected type 42, got %d", plugin.Header().MsgType)
	}
}

func TestDecodeUnknownReservedTypeErrors(t *testing.T) {
	data := []byte(`{"type":9,"from":1,"dest":0,"routing":0}`)
	if _, err := Decode(data); err == nil {
		t.Fatalf("expected error for unused reserved type")
	}
}

func TestTreeEqualAndAsList(t *testing.T) {
	a := Tree{NodeID: 1, Subs: []Tree{{NodeID: 2}, {NodeID: 3}}}
	b := Tree{NodeID: 1, Subs: []Tree{{NodeID: 2}, {NodeID: 3}}}
	if !a.Equal(b) {
		t.Fatalf("expected equal trees")
	}
	c := Tree{NodeID: 1, Subs: []Tree{{NodeID: 2}}}
	if a.Equal(c) {
		t.Fatalf("expected unequal trees")
	}
	list := a.AsList()
	want := map[uint32]bool{1: true, 2: true, 3: true}
	if len(list) != 3 {
		t.Fatalf("expected 3 ids, got %v", list)
	}
	for _, id := range list {
		if !want[id] {
			t.Fatalf("unexpected id %d in %v", id, list)
		}
	}
}

func TestTreeContains(t *testing.T) {
	tree := Tree{NodeID: 1, Subs: []Tree{{NodeID: 2, Subs: []Tree{{NodeID: 5}}}}}
	if !tree.Contains(5) {
		t.Fatalf("expected tree to contain nested node 5")
	}
	if tree.Contains(99) {
		t.Fatalf("did not expect tree to contain 99")
	}
}
