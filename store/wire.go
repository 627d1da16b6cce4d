package store

import (
	"encoding/json"
)

// Wire error kinds carried in a query reply.
const (
	wireKindNotOwner        = "not_owner"
	wireKindDeserialization = "deserialization"
	wireKindInternal        = "internal"
)

// queryRequest is the payload of one remote point query. The key travels
// as the exact bytes the runtime partitions on.
type queryRequest struct {
	ID    string `json:"id"`
	Store string `json:"store"`
	Key   []byte `json:"key"`
}

// queryReply is the answer. Found distinguishes a confirmed absence from
// a transport-level failure; Error/Kind carry typed failures.
type queryReply struct {
	ID    string `json:"id"`
	Value []byte `json:"value,omitempty"`
	Found bool   `json:"found"`
	Error string `json:"error,omitempty"`
	Kind  string `json:"kind,omitempty"`
}

func encodeRequest(req queryRequest) ([]byte, error) {
	return json.Marshal(req)
}

func decodeRequest(data []byte) (queryRequest, error) {
	var req queryRequest
	err := json.Unmarshal(data, &req)
	return req, err
}

func encodeReply(reply queryReply) []byte {
	data, err := json.Marshal(reply)
	if err != nil {
		// A reply that cannot marshal is a programming error; answer with
		// a minimal internal failure so the caller is never left hanging.
		return []byte(`{"found":false,"error":"reply encoding failed","kind":"internal"}`)
	}
	return data
}

func decodeReply(data []byte) (queryReply, error) {
	var reply queryReply
	err := json.Unmarshal(data, &reply)
	return reply, err
}
