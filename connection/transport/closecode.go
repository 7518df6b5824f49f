package transport

// CloseCode is a websocket close status code as defined by RFC 6455 §7.4.
// Names follow the IANA WebSocket Close Code Number registry.
type CloseCode int

const (
	CloseNormalClosure           CloseCode = 1000
	CloseGoingAway               CloseCode = 1001
	CloseProtocolError           CloseCode = 1002
	CloseUnsupportedData         CloseCode = 1003
	CloseNoStatusReceived        CloseCode = 1005
	CloseAbnormalClosure         CloseCode = 1006
	CloseInvalidFramePayloadData CloseCode = 1007
	ClosePolicyViolation         CloseCode = 1008
	CloseMessageTooBig           CloseCode = 1009
	CloseMandatoryExtension      CloseCode = 1010
	CloseInternalServerErr       CloseCode = 1011
	CloseServiceRestart          CloseCode = 1012
	CloseTryAgainLater           CloseCode = 1013
	CloseTLSHandshake            CloseCode = 1015
)

// Valid reports whether the code may be carried in a close frame we send.
// 1005, 1006 and 1015 are reserved for synthesized local use and must never
// go on the wire; 1014 and 1016-2999 are unassigned or reserved for future
// protocol revisions; 3000-4999 are free for libraries and applications.
func (c CloseCode) Valid() bool {
	switch {
	case c >= CloseNormalClosure && c <= CloseUnsupportedData:
		return true
	case c >= CloseInvalidFramePayloadData && c <= CloseTryAgainLater:
		return true
	case c >= 3000 && c <= 4999:
		return true
	default:
		return false
	}
}
