package eventlog

import "encoding/json"

// EncodePayload serializes an event payload for storage. Payloads must be
// JSON-encodable; the engine's live dispatch path never round-trips through
// this codec, only durable storage and startup replay do.
func EncodePayload(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// DecodePayload deserializes a stored payload. nil data decodes to nil.
func DecodePayload(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
