// Package protocol implements the framed serial protocol spoken between the
// pin HAL firmware and the host tool.
//
// A frame is
//
//	len seq payload crc_hi crc_lo 0x7E
//
// where len counts the whole frame, seq carries 0x10 in its high nibble and a
// 4-bit sequence number in its low nibble, and the payload is a run of
// messages, each a VLQ command id followed by VLQ arguments. An empty payload
// is an ACK carrying the next sequence the receiver expects.
package protocol

// Version of the wire protocol
const Version = "gohal-0.1.0"

const (
	FrameHeaderSize  = 2
	FrameTrailerSize = 3
	FrameMinSize     = FrameHeaderSize + FrameTrailerSize
	FrameMaxSize     = 64
	MaxPayload       = FrameMaxSize - FrameMinSize

	SyncByte = 0x7E
	DestBits = 0x10
	SeqMask  = 0x0F
)

// NextSeq returns the sequence byte following seq
func NextSeq(seq uint8) uint8 {
	return ((seq + 1) & SeqMask) | DestBits
}
