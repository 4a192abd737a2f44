package version

// Version contains the version of the running program.
//
// It gets set at compile time by the release pipeline via -ldflags.
var Version string
