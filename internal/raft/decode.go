package raft

import "encoding/json"

func decodeReply(body json.RawMessage, out any) error {
	if len(body) == 0 {
		return json.Unmarshal([]byte("{}"), out)
	}
	return json.Unmarshal(body, out)
}
