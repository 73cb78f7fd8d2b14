package sdk

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/celerix-dev/celerix-records/pkg/engine"
)

// Commands of the line protocol. Each request is one line; each reply is one
// line starting with OK or ERR.
const (
	CmdAuth         = "AUTH"
	CmdStore        = "STORE"
	CmdGet          = "GET"
	CmdGetHash      = "GET_HASH"
	CmdMeta         = "META"
	CmdRegistered   = "REGISTERED"
	CmdCount        = "COUNT"
	CmdUpdate       = "UPDATE"
	CmdTouch        = "TOUCH"
	CmdSetAuthority = "SET_AUTHORITY"
	CmdAuthority    = "AUTHORITY"
	CmdHeight       = "HEIGHT"
	CmdPing         = "PING"
	CmdQuit         = "QUIT"
)

// Commands lists every command the daemon understands.
var Commands = []string{
	CmdAuth, CmdStore, CmdGet, CmdGetHash, CmdMeta, CmdRegistered, CmdCount,
	CmdUpdate, CmdTouch, CmdSetAuthority, CmdAuthority, CmdHeight, CmdPing, CmdQuit,
}

// AuthorityReply is the payload of an AUTHORITY reply.
type AuthorityReply struct {
	Principal string `json:"principal"`
	Set       bool   `json:"set"`
}

// FormatError renders err as an ERR reply line (without newline). Domain
// errors carry their code; everything else uses code 0.
func FormatError(err error) string {
	code, _ := engine.CodeOf(err)
	return fmt.Sprintf("ERR %d %s", code, err.Error())
}

// ParseError converts an ERR reply back into an error. Known domain codes map
// to the engine sentinels so errors.Is works across the wire.
func ParseError(line string) error {
	rest := strings.TrimSpace(strings.TrimPrefix(line, "ERR"))
	codeStr, msg, _ := strings.Cut(rest, " ")
	code, err := strconv.Atoi(codeStr)
	if err != nil {
		return errors.New(rest)
	}
	if sentinel := engine.ErrorFromCode(engine.Code(code)); sentinel != nil {
		extra, found := strings.CutPrefix(msg, sentinel.Error())
		if !found {
			return fmt.Errorf("%w: %s", sentinel, msg)
		}
		if extra == "" {
			return sentinel
		}
		return fmt.Errorf("%w%s", sentinel, extra)
	}
	return errors.New(msg)
}
