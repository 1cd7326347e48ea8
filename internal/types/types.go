package types

import "strings"

// ProtocolMethod defines the command type.
type ProtocolMethod int

const (
	OpInvalid ProtocolMethod = iota
	OpListAlpha
	OpListByTime
	OpFileInfo
	OpSizeRange
	OpModifiedBefore
	OpModifiedAfter
	OpExtensionSet
	OpQuit
)

var methodNames = map[ProtocolMethod]string{
	OpInvalid:        "invalid",
	OpListAlpha:      "dirlist -a",
	OpListByTime:     "dirlist -t",
	OpFileInfo:       "w24fn",
	OpSizeRange:      "w24fz",
	OpModifiedBefore: "w24fdb",
	OpModifiedAfter:  "w24fda",
	OpExtensionSet:   "w24ft",
	OpQuit:           "quitc",
}

func (m ProtocolMethod) String() string {
	if s, ok := methodNames[m]; ok {
		return s
	}
	return "unknown"
}

// ArchiveProducing reports whether the command ends in an archive handoff.
func (m ProtocolMethod) ArchiveProducing() bool {
	switch m {
	case OpSizeRange, OpModifiedBefore, OpModifiedAfter, OpExtensionSet:
		return true
	}
	return false
}

// Command is one parsed request line. Only the fields relevant to Op are set.
type Command struct {
	Op         ProtocolMethod
	Raw        string
	Name       string   // OpFileInfo
	Lo, Hi     int64    // OpSizeRange
	Date       string   // OpModifiedBefore, OpModifiedAfter
	Extensions []string // OpExtensionSet
	Reason     string   // OpInvalid, or a malformed payload on a known verb
}

// Malformed reports whether the verb was recognized but its arguments were not.
func (c Command) Malformed() bool {
	return c.Op != OpInvalid && c.Reason != ""
}

func (c Command) String() string {
	if c.Raw != "" {
		return c.Raw
	}
	parts := []string{c.Op.String()}
	if c.Name != "" {
		parts = append(parts, c.Name)
	}
	if c.Date != "" {
		parts = append(parts, c.Date)
	}
	parts = append(parts, c.Extensions...)
	return strings.Join(parts, " ")
}

// RouteDecision names the node that handles a connection.
type RouteDecision int

const (
	RouteLocal RouteDecision = iota
	RouteMirror1
	RouteMirror2
)

func (r RouteDecision) String() string {
	switch r {
	case RouteLocal:
		return "Local"
	case RouteMirror1:
		return "Mirror1"
	case RouteMirror2:
		return "Mirror2"
	}
	return "Unknown"
}

// Role selects whether a node fronts the mirrors or only serves locally.
type Role string

const (
	RolePrimary Role = "primary"
	RoleMirror  Role = "mirror"
)

// NodeConfig holds per-node runtime configuration.
type NodeConfig struct {
	Role    Role
	Port    int
	Home    string // root of the served tree
	WorkDir string // archives, staging directories and path lists
	Mirror1 string // host:port, primary only
	Mirror2 string
}

// RequestContext carries request data through the pipeline.
type RequestContext struct {
	ReqID    string
	Ordinal  uint64
	Command  Command
	RespChan chan ResponseContext // Channel to send response back
}

// ResponseContext carries the result. Frames are written to the client in order.
type ResponseContext struct {
	ReqID   string
	Success bool
	Frames  []string
	Archive string // absolute path of the produced archive, if any
	Error   error
}
