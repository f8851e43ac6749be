package store

import "fmt"

// Key schema for the pebble ledger:
//
//	agent:<agentID>                          → agent record
//	res:<agentID>:<unix nanos>:<resultID>    → result record
//	tick:<tickID>                            → committed tick record
const (
	prefixAgent  = "agent:"
	prefixResult = "res:"
	prefixTick   = "tick:"
)

func agentKey(id string) []byte {
	return []byte(prefixAgent + id)
}

// resultKey zero-pads the timestamp so results sort chronologically.
func resultKey(agentID string, unixNano int64, resultID string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixResult, agentID, unixNano, resultID))
}

func resultPrefix(agentID string) []byte {
	return []byte(prefixResult + agentID + ":")
}

func tickKey(id string) []byte {
	return []byte(prefixTick + id)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
