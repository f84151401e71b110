package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack encodes payloads with MessagePack. It is smaller and faster to
// decode than gob for large vector payloads and is readable from other
// languages.
type Msgpack struct{}

func (Msgpack) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

func (Msgpack) Name() string { return "msgpack" }
