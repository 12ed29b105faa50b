package protocol

import "errors"

var (
	ErrEmptyPayload      = errors.New("protocol: empty payload")
	ErrTruncated         = errors.New("protocol: truncated operation")
	ErrInvalidLength     = errors.New("protocol: declared length exceeds payload")
	ErrUnknownOperation  = errors.New("protocol: unknown operation")
	ErrBadMagic          = errors.New("protocol: bad reset magic")
	ErrStaleView         = errors.New("protocol: view outlived its frame")
	ErrBufferTooSmall    = errors.New("protocol: buffer too small")
	ErrUnknownResponse   = errors.New("protocol: unknown response")
	ErrOperationTooLarge = errors.New("protocol: operation too large")
)
