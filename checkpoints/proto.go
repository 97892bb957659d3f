package checkpoints

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// The binary format stores the checkpoint as a protobuf well-known Struct.
// The checkpoint is lowered to its JSON object model first, which keeps the
// two formats field-for-field identical.

func encodeBinary(c *Checkpoint) ([]byte, error) {
	jsonData, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to lower checkpoint for binary encoding: %v", err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, fmt.Errorf("failed to lower checkpoint for binary encoding: %v", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build checkpoint struct: %v", err)
	}
	data, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode binary checkpoint: %v", err)
	}
	return data, nil
}

func decodeBinary(data []byte) (*Checkpoint, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("failed to decode binary checkpoint: %v", err)
	}
	jsonData, err := json.Marshal(st.AsMap())
	if err != nil {
		return nil, fmt.Errorf("failed to raise binary checkpoint: %v", err)
	}
	var c Checkpoint
	if err := json.Unmarshal(jsonData, &c); err != nil {
		return nil, fmt.Errorf("failed to raise binary checkpoint: %v", err)
	}
	return &c, nil
}
