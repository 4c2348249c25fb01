package domain

// CommandType enumerates the closed set of inbound room commands.
type CommandType string

const (
	CommandJoin         CommandType = "join"
	CommandLeave        CommandType = "leave"
	CommandAnswer       CommandType = "answer"
	CommandStart        CommandType = "start"
	CommandPause        CommandType = "pause"
	CommandResume       CommandType = "resume"
	CommandNextQuestion CommandType = "next_question"
	CommandFinish       CommandType = "finish"
	CommandKick         CommandType = "kick"
)

// Command is one inbound request against a room. Issuer is the opaque
// identity supplied by the auth collaborator; the engine trusts it
// beyond the room's own access-code check.
type Command struct {
	Type   CommandType `json:"type"`
	Issuer string      `json:"issuer"`

	// join
	DisplayName string `json:"displayName,omitempty"`
	AccessCode  string `json:"accessCode,omitempty"`

	// answer
	QuestionIndex  int    `json:"questionIndex,omitempty"`
	OptionID       string `json:"optionId,omitempty"`
	ResponseTimeMs int64  `json:"responseTimeMs,omitempty"`

	// kick
	TargetIdentity string `json:"targetIdentity,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

// HostOnly reports whether a command type requires the room's host.
func (t CommandType) HostOnly() bool {
	switch t {
	case CommandStart, CommandPause, CommandResume, CommandNextQuestion, CommandFinish, CommandKick:
		return true
	}
	return false
}

// Known reports whether t is part of the command set at all.
func (t CommandType) Known() bool {
	switch t {
	case CommandJoin, CommandLeave, CommandAnswer, CommandStart, CommandPause,
		CommandResume, CommandNextQuestion, CommandFinish, CommandKick:
		return true
	}
	return false
}
