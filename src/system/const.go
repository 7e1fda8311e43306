package system

// Version is the current version of the API, set at build time with
// -ldflags "-X github.com/pyrohost/resticapi/src/system.Version=...".
var Version = "develop"
