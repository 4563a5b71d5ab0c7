package internal

// Version is the lexigap release version. Overridden at build time via
// -ldflags "-X codeberg.org/snonux/lexigap/internal.Version=...".
var Version = "0.3.0"
