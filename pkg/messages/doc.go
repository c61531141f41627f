// Package messages defines the unit of transmission between the two
// keyboard halves and the delivery contract attached to it.
//
// An Envelope wraps a tagged payload with a reliability Class. The class
// only parameterizes the transport through the Policies table: a deadline
// for each transmission attempt and a retry budget. Unreliable traffic is
// sent once and never retains a pool slot, so high frequency, low value
// messages (e.g. heartbeats) cannot starve critical traffic.
package messages
