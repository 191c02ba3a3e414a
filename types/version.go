package types

// Version is the canonical project version. The CLI, the MCP facade, and
// the on-disk record formats share this version (lockstep versioning).
const Version = "0.1.0"
