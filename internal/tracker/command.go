package tracker

import "fmt"

// Kind tags the single operation the client may have outstanding.
type Kind int

const (
	KindNone Kind = iota
	KindGenerateAll
	KindGenerateFrame
	KindCombine
)

func (k Kind) String() string {
	switch k {
	case KindGenerateAll:
		return "generate_all"
	case KindGenerateFrame:
		return "generate_frame"
	case KindCombine:
		return "combine"
	default:
		return "none"
	}
}

// MarshalText renders the kind by name in JSON payloads.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for _, kind := range []Kind{KindNone, KindGenerateAll, KindGenerateFrame, KindCombine} {
		if kind.String() == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown command kind %q", text)
}

// Command identifies a mutating command. FrameID is set only for KindGenerateFrame.
type Command struct {
	Kind    Kind   `json:"kind"`
	FrameID string `json:"frame_id,omitempty"`
}

// GenerateAll is the project-wide generate command.
func GenerateAll() Command { return Command{Kind: KindGenerateAll} }

// GenerateFrame targets a single frame.
func GenerateFrame(frameID string) Command { return Command{Kind: KindGenerateFrame, FrameID: frameID} }

// Combine is the aggregate stage command.
func Combine() Command { return Command{Kind: KindCombine} }

func (c Command) String() string {
	if c.Kind == KindGenerateFrame {
		return fmt.Sprintf("%s(%s)", c.Kind, c.FrameID)
	}
	return c.Kind.String()
}

// Result is what the transport reported for a command.
type Result struct {
	// Err is set when the command did not reach or was refused by the studio.
	Err error
	// Noop is set when the studio accepted the call but had nothing to do.
	Noop bool
	// VideoURL is adopted from a combine response.
	VideoURL string
}

// InFlight is the outstanding operation. Started means a snapshot showed
// the studio working on it; Settled means the command call returned.
type InFlight struct {
	Command
	Started bool `json:"started"`
	Settled bool `json:"settled"`
}

// Busy reports whether an operation is outstanding.
func (f InFlight) Busy() bool {
	return f.Kind != KindNone
}
