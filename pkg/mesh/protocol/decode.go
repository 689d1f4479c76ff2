package protocol

import "github.com/pkg/errors"

// ErrUnknownType is returned by Decode when the wire type cannot be
// matched to any catalog entry and falls outside the plugin range.
var ErrUnknownType = errors.New("protocol: unknown message type")

// Decode peeks the "type" field of data and unmarshals it into the
// matching concrete Variant, falling back to PluginPackage for anything
// in the user/plugin range (spec.md §4.3, §9: this single peek-then-switch
// replaces the teacher's virtual-constructor Package hierarchy).
func Decode(data []byte) (Variant, error) {
	var peek peekEnvelope
	if err := json.Unmarshal(data, &peek); err != nil {
		return nil, errors.Wrap(err, "protocol: decode envelope")
	}

	var v Variant
	switch peek.MsgType {
	case TypeNodeSyncRequest:
		v = &NodeSyncRequest{}
	case TypeNodeSyncReply:
		v = &NodeSyncReply{}
	case TypeTimeSync:
		v = &TimeSync{}
	case TypeTimeDelay:
		v = &TimeDelay{}
	case TypeSingle:
		v = &Single{}
	case TypeBroadcast:
		v = &Broadcast{}
	case TypeBridgeStatus:
		v = &BridgeStatus{}
	case TypeBridgeElection:
		v = &BridgeElection{}
	case TypeBridgeTakeover:
		v = &BridgeTakeover{}
	case TypeBridgeCoordination:
		v = &BridgeCoordination{}
	case TypeGatewayData:
		v = &GatewayData{}
	case TypeGatewayAck:
		v = &GatewayAck{}
	case TypeGatewayHeartbeat:
		v = &GatewayHeartbeat{}
	default:
		if peek.MsgType.IsPlugin() {
			v = &PluginPackage{}
		} else {
			return nil, errors.Wrapf(ErrUnknownType, "type %d", peek.MsgType)
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return nil, errors.Wrap(err, "protocol: decode payload")
	}
	return v, nil
}

// Encode marshals any Variant back to its wire JSON form.
func Encode(v Variant) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "protocol: encode")
	}
	return b, nil
}
