package constants

const (
	// Name is the name of the program.
	Name = "beyond-relay"
	// Version is the version of the program.
	Version = "0.1.0"
)
