package protocol

// Command identifies the operation a request asks for.
type Command string

// Known commands
const (
	// CommandPrint fills missing type annotations with a placeholder type
	CommandPrint Command = "print"
	// CommandTree returns the code block tree of a source file
	CommandTree Command = "tree"
	// CommandStub returns the signatures of a source file with bodies elided
	CommandStub Command = "stub"
	// CommandCheck compares a completed source file with its original
	CommandCheck Command = "check"
	// CommandWeave copies annotations from a second source into the first
	CommandWeave Command = "weave"
	// CommandUsages finds call sites of an inner block inside an outer one
	CommandUsages Command = "usages"
	// CommandTypeCheck counts the errors in a source file
	CommandTypeCheck Command = "typecheck"
	// CommandObjectInfo reports which members of each parameter a function uses
	CommandObjectInfo Command = "objectInfo"
	// CommandTypedefGen renders type templates from the object info
	CommandTypedefGen Command = "typedefGen"
)

// ResponseTypeError is the response type of every failed request
const ResponseTypeError = "error"

// DefaultTypeName is the placeholder used by print when no typeName is sent
const DefaultTypeName = "_hole_"

var commands = []Command{
	CommandPrint,
	CommandTree,
	CommandStub,
	CommandCheck,
	CommandWeave,
	CommandUsages,
	CommandTypeCheck,
	CommandObjectInfo,
	CommandTypedefGen,
}

var responseTypes = map[Command]string{
	CommandPrint:      "printResponse",
	CommandTree:       "treeResponse",
	CommandStub:       "stubResponse",
	CommandCheck:      "checkResponse",
	CommandWeave:      "weaveResponse",
	CommandUsages:     "usagesResponse",
	CommandTypeCheck:  "typeCheckResponse",
	CommandObjectInfo: "objectInfoResponse",
	CommandTypedefGen: "typedefGenResponse",
}

// Commands returns every known command in a stable order.
func Commands() []Command {
	return append([]Command(nil), commands...)
}

// ParseCommand maps a wire tag to a Command.
func ParseCommand(tag string) (Command, error) {
	cmd := Command(tag)
	if _, ok := responseTypes[cmd]; !ok {
		return "", &UnknownCommandError{Command: tag}
	}
	return cmd, nil
}

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	_, ok := responseTypes[c]
	return ok
}

// ResponseType returns the type tag of a successful response to c.
func (c Command) ResponseType() string {
	if t, ok := responseTypes[c]; ok {
		return t
	}
	return string(c) + "Response"
}

func (c Command) String() string {
	return string(c)
}
