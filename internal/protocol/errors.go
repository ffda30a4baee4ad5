package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// World routing.
	ErrWorldNotFound = "E_WORLD_NOT_FOUND"

	// Command layer.
	ErrBadRequest  = "E_BAD_REQUEST"
	ErrBadPayload  = "E_BAD_PAYLOAD"
	ErrUnknownType = "E_UNKNOWN_COMMAND_TYPE"
	ErrStale       = "E_STALE"
	ErrInternal    = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrWorldNotFound:   {},
	ErrBadRequest:      {},
	ErrBadPayload:      {},
	ErrUnknownType:     {},
	ErrStale:           {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
