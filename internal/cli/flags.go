package cli

import "time"

// Flags holds all command-line flag values
type Flags struct {
	// General flags
	CfgFile    string
	StateDir   string
	Serve      bool
	Listen     string
	Document   string
	Mode       string
	Quiz       bool
	Stats      bool
	ClearCache bool
	ListModels bool

	// Translation flags
	Provider       string
	Model          string
	TargetLanguage string
	NativeLanguage string

	// Scheduling flags
	MaxUnits    int
	MaxChars    int
	Concurrency int

	// Cache flags
	CacheCapacity int
	CacheTTL      time.Duration

	// Filter flags
	MinHardRatio float64
}

// NewFlags creates a new Flags instance with default values
func NewFlags() *Flags {
	return &Flags{
		Listen:         ":8372",
		Mode:           "word",
		Provider:       "openai",
		TargetLanguage: "German",
		NativeLanguage: "English",
		MaxUnits:       8,
		MaxChars:       4000,
		Concurrency:    3,
		CacheCapacity:  2000,
		CacheTTL:       14 * 24 * time.Hour,
	}
}
