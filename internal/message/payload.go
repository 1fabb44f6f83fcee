package message

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fields is the generic form of a message payload. On the wire it is a
// protobuf google.protobuf.Struct, so numbers come back as float64.
type Fields map[string]interface{}

// EncodeFields serializes f deterministically. A nil or empty map encodes to
// an empty payload.
func EncodeFields(f Fields) ([]byte, error) {
	if len(f) == 0 {
		return nil, nil
	}
	s, err := structpb.NewStruct(f)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(s)
}

// DecodeFields parses a payload produced by EncodeFields.
func DecodeFields(b []byte) (Fields, error) {
	if len(b) == 0 {
		return Fields{}, nil
	}
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	return s.AsMap(), nil
}

func (f Fields) GetInt(key string) int {
	switch v := f[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

func (f Fields) GetString(key string) string {
	s, _ := f[key].(string)
	return s
}

func (f Fields) GetBool(key string) bool {
	b, _ := f[key].(bool)
	return b
}

func (f Fields) GetStrings(key string) []string {
	list, _ := f[key].([]interface{})
	var out []string
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (f Fields) GetList(key string) []Fields {
	list, _ := f[key].([]interface{})
	var out []Fields
	for _, v := range list {
		if m, ok := v.(map[string]interface{}); ok {
			out = append(out, Fields(m))
		}
	}
	return out
}

func stringList(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}
