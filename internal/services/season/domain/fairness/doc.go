// Package fairness implements the commit-reveal protocol used to derive
// challenge rolls.
//
// A client publishes SHA-256(seed) before the challenge locks. The server seed
// is generated only after every commitment is recorded, and its own hash is
// published at lock time. Once both seeds are public, anyone can recompute
// every roll with DeriveRoll and check a published result with VerifyRolls.
//
// Seeds are 32 random bytes rendered as 64 lowercase hex characters. Hashes
// are computed over the seed's text form, so an auditor needs nothing but the
// published strings.
//
// Roll recipe, byte for byte:
//
//	key     = UTF-8 bytes of serverSeed (the 64-char hex text, not its decoding)
//	message = clientSeed + "|" + encounterID + "|" + subjectID
//	mac     = HMAC-SHA256(key, message)
//	roll    = uint32 big-endian of mac[0:4] mod 20, plus 1
//
// The "|" separator is a single 0x7C byte. encounterID is
// "<seasonID>/<day>/<round>" and subjectID is the player id, so a roll for
// player r1 in the day 3 immunity challenge of season s1 hashes
// "<clientSeed>|s1/3/immunity|r1".
package fairness
