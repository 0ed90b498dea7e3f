package utils

import "crypto/rand"

// inviteAlphabet avoids characters that read ambiguously when shared
// out loud or written down (no 0/O, 1/I/L).
const inviteAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// InviteCode generates a random human-shareable code of n characters.
func InviteCode(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("utils: crypto/rand unavailable: " + err.Error())
	}
	for i, b := range buf {
		buf[i] = inviteAlphabet[int(b)%len(inviteAlphabet)]
	}
	return string(buf)
}
