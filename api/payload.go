package api

import "encoding/json"

// sendPayload mirrors SendMessageRequest with each field left undecoded, so
// a field of the wrong type fails the relay check it belongs to instead of
// rejecting the whole request up front.
type sendPayload struct {
	SenderLogin     json.RawMessage `json:"senderLogin"`
	ReceiverSteamID json.RawMessage `json:"receiverSteamId"`
	Message         json.RawMessage `json:"message"`
}

// decodeSendRequest reads a sendMessage payload. Fields that are missing or
// not JSON strings come back empty; a payload that is not an object yields
// an empty request. The relay then reports the first failing check.
func decodeSendRequest(data json.RawMessage) SendMessageRequest {
	var p sendPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return SendMessageRequest{}
	}
	return SendMessageRequest{
		SenderLogin:     decodeString(p.SenderLogin),
		ReceiverSteamID: decodeString(p.ReceiverSteamID),
		Message:         decodeString(p.Message),
	}
}

// decodeString returns raw as a string, or "" when it is not a JSON string.
func decodeString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}
