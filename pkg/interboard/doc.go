// Package interboard provides the transport between the two keyboard halves.
package interboard

// The interboard link is a single half-duplex byte channel. Only one side
// transmits at a time: the initiator (the half with USB) opens every turn
// with exactly one frame, and the responder answers every valid frame with
// exactly one frame. The role is decided once at boot.
//
// Frames are protected by a CRC-32 and carry a per-origin sequence number.
// A corrupted frame is discarded silently and recovered by the sender's
// retransmission. Acknowledgments are piggy-backed on the next frame in
// the opposite direction, and duplicates are acknowledged again but never
// forwarded twice.
//
// Producer: transmission pool
// Consumer: distributor
