package protocol

import (
	"strconv"
	"strings"

	"w24fs/internal/types"
)

// Client-visible rejection texts produced at parse time.
const (
	MsgInvalidCommand    = "Invalid command"
	MsgBadSizeFormat     = "Invalid size range format"
	MsgNoDate            = "No date provided"
	MsgBadExtensionCount = "Invalid number of extensions. Provide 1 to 3 extensions."
	MsgMissingFilename   = "No filename provided"
)

// MaxExtensions is how many extensions w24ft honours; extra tokens are ignored.
const MaxExtensions = 3

// Parse turns one request line into a Command. It never fails: unknown verbs
// come back as OpInvalid and known verbs with unusable arguments keep their Op
// and carry a Reason.
func Parse(line string) types.Command {
	line = strings.TrimRight(line, "\r\n\x00")
	line = strings.TrimSpace(line)
	cmd := types.Command{Raw: line}

	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "dirlist":
		switch rest {
		case "-a":
			cmd.Op = types.OpListAlpha
		case "-t":
			cmd.Op = types.OpListByTime
		default:
			return invalid(cmd)
		}

	case "w24fn":
		cmd.Op = types.OpFileInfo
		cmd.Name = rest
		if rest == "" {
			cmd.Reason = MsgMissingFilename
		}

	case "w24fz":
		cmd.Op = types.OpSizeRange
		fields := strings.Fields(rest)
		if len(fields) < 2 {
			cmd.Reason = MsgBadSizeFormat
			break
		}
		lo, errLo := strconv.ParseInt(fields[0], 10, 64)
		hi, errHi := strconv.ParseInt(fields[1], 10, 64)
		if errLo != nil || errHi != nil {
			cmd.Reason = MsgBadSizeFormat
			break
		}
		cmd.Lo, cmd.Hi = lo, hi

	case "w24fdb", "w24fda":
		cmd.Op = types.OpModifiedBefore
		if verb == "w24fda" {
			cmd.Op = types.OpModifiedAfter
		}
		cmd.Date = rest
		if rest == "" {
			cmd.Reason = MsgNoDate
		}

	case "w24ft":
		cmd.Op = types.OpExtensionSet
		for _, f := range strings.Fields(rest) {
			if len(cmd.Extensions) == MaxExtensions {
				break
			}
			if ext := strings.TrimPrefix(f, "."); ext != "" {
				cmd.Extensions = append(cmd.Extensions, ext)
			}
		}
		if len(cmd.Extensions) == 0 {
			cmd.Reason = MsgBadExtensionCount
		}

	case "quitc":
		if rest != "" {
			return invalid(cmd)
		}
		cmd.Op = types.OpQuit

	default:
		return invalid(cmd)
	}
	return cmd
}

// Rejection returns the text a node answers without running the command, or
// "" when the command should be executed.
func Rejection(cmd types.Command) string {
	if cmd.Op == types.OpInvalid {
		if cmd.Reason != "" {
			return cmd.Reason
		}
		return MsgInvalidCommand
	}
	return cmd.Reason
}

// ResponseFrames is the number of frames a node writes back for cmd.
func ResponseFrames(cmd types.Command) int {
	if Rejection(cmd) != "" {
		return 1
	}
	switch cmd.Op {
	case types.OpQuit:
		return 0
	case types.OpListAlpha:
		return 2
	}
	return 1
}

// Terminate pads frames so a failed command still yields the frame count
// ResponseFrames promises. For dirlist -a that means the sentinel always
// comes last.
func Terminate(cmd types.Command, frames []string) []string {
	want := ResponseFrames(cmd)
	if want == 2 && (len(frames) == 0 || frames[len(frames)-1] != EndOfData) {
		frames = append(frames, EndOfData)
	}
	return frames
}

func invalid(cmd types.Command) types.Command {
	cmd.Op = types.OpInvalid
	cmd.Reason = MsgInvalidCommand
	return cmd
}
