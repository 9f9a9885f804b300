// Package integrity signs and verifies the season audit journal.
//
// Every appended event carries a content hash and a chain hash linking it to
// its predecessor. The chain hash is signed with an HMAC key derived per
// season, so a journal copied between seasons or edited in place fails
// verification.
package integrity
