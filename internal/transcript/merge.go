// Package transcript keeps a client's view of one conversation: history
// loaded from the server plus turns streamed during this visit.
package transcript

type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type key struct {
	role    string
	content string
}

// Merge returns loaded followed by live with repeated (role, content) pairs
// dropped after their first appearance. An empty loaded returns live as is.
func Merge(loaded, live []Message) []Message {
	if len(loaded) == 0 {
		return live
	}

	out := make([]Message, 0, len(loaded)+len(live))
	seen := make(map[key]struct{}, len(loaded)+len(live))
	for _, list := range [][]Message{loaded, live} {
		for _, m := range list {
			k := key{m.Role, m.Content}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}
