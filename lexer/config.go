package lexer

// Config controls tokenization.
type Config struct {
	// StripWhitespace removes the indentation and the line break of lines
	// that contain nothing but FTL tags and comments.
	StripWhitespace bool
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{StripWhitespace: true}
}
