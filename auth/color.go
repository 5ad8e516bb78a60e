package auth

import "hash/fnv"

// neonPalette is the fixed set of cursor colors. A user keeps the same
// color across sessions because assignment hashes the stable user id.
var neonPalette = []string{
	"#ff2d95", // neon pink
	"#00f0ff", // electric cyan
	"#39ff14", // neon green
	"#ffe600", // laser yellow
	"#ff6ec7", // hot magenta
	"#7df9ff", // ice blue
	"#ff9f1c", // neon orange
	"#b026ff", // ultraviolet
	"#04d9ff", // sky glow
	"#ccff00", // acid lime
}

// ColorForUser deterministically assigns a palette color to a user id.
func ColorForUser(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return neonPalette[h.Sum32()%uint32(len(neonPalette))]
}
