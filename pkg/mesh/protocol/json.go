package protocol

import jsoniter "github.com/json-iterator/go"

// json is configured to be a drop-in, faster replacement for
// encoding/json throughout the wire codec (SPEC_FULL.md §3 DOMAIN STACK),
// grounded on rockstar-0000-aistore's use of json-iterator/go for its own
// object/wire encoding.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RawMessage re-exports jsoniter's delayed-decode type so callers outside
// this package never need to import json-iterator directly.
type RawMessage = jsoniter.RawMessage
