package gateway

// Session is the server-issued identity for one simulated user: an opaque id
// plus the bearer token the stream connection authenticates with.
type Session struct {
	ID    string
	Token string
}

// PushEvent is one decoded push message from the session's channel: either an
// incremental token or the completion marker.
type PushEvent struct {
	Token string
	Done  bool
}

// createSessionResponse is the body of POST /api/sessions/create.
type createSessionResponse struct {
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

// runRequest is the body of POST /api/run.
type runRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// runResponse is the body returned by POST /api/run.
type runResponse struct {
	Response string `json:"response"`
}

// connectCommand is the first frame sent on a fresh websocket connection.
type connectCommand struct {
	ID      int         `json:"id"`
	Connect connectBody `json:"connect"`
}

type connectBody struct {
	Token string `json:"token"`
}

// pushEnvelope is the wire shape of a server push. Publications arrive under
// push.pub.data; anything else (connect replies, pings) decodes to a zero
// envelope and is skipped by the reader.
type pushEnvelope struct {
	Push *pushBody `json:"push"`
}

type pushBody struct {
	Pub *publication `json:"pub"`
}

type publication struct {
	Data pushData `json:"data"`
}

type pushData struct {
	Token string `json:"token"`
	Done  bool   `json:"done"`
}
