package session

import (
	"fmt"
	"strings"

	"github.com/hectorgimenez/koolaunch/internal/game"
	"github.com/hectorgimenez/koolaunch/internal/patch"
)

type Action int

const (
	ActionLaunch Action = iota
	ActionRepair
	ActionVersionCheck
	ActionNoPluginRuntime
	ActionNoPlugins
	ActionNoThirdPartyPlugins
)

var actionNames = map[Action]string{
	ActionLaunch:              "launch",
	ActionRepair:              "repair",
	ActionVersionCheck:        "check",
	ActionNoPluginRuntime:     "no-runtime",
	ActionNoPlugins:           "no-plugins",
	ActionNoThirdPartyPlugins: "no-thirdparty",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

func ParseAction(s string) (Action, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ActionLaunch, nil
	}
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}

	return ActionLaunch, fmt.Errorf("unknown action %q", s)
}

// Launches reports whether the action ends with the game running. Repair and
// version check stop after patching.
func (a Action) Launches() bool {
	return a != ActionRepair && a != ActionVersionCheck
}

func (a Action) usesPluginRuntime() bool {
	return a.Launches() && a != ActionNoPluginRuntime
}

// Settings is the part of the launcher configuration read during an attempt.
type Settings struct {
	GamePath       string
	Runner         game.Runner
	RuntimePath    string
	DPIMode        game.DPIMode
	LaunchArgs     string
	ExtraArgs      string
	CaptchaEnabled bool
	AutoFillOTP    bool
	Addons         []game.Addon
}

// Context is the state threaded through the stages of one login attempt. Stages
// receive a copy and return an updated copy; nothing else holds attempt state.
type Context struct {
	AttemptID   string
	Account     string
	Credentials Credentials
	Settings    Settings
	Action      Action

	OTP            *string
	CaptchaToken   string
	SessionID      string
	PendingPatches []patch.Entry
}

func (c Context) withOTP(code string) Context {
	c.OTP = &code
	return c
}

func (c Context) withCaptchaToken(token string) Context {
	c.CaptchaToken = token
	return c
}

func (c Context) withSessionID(id string) Context {
	c.SessionID = id
	return c
}

func (c Context) withPendingPatches(pending []patch.Entry) Context {
	c.PendingPatches = append([]patch.Entry(nil), pending...)
	return c
}

// repositoryBatches splits pending patches into consecutive runs of the same
// repository. Concatenating the batches gives back the backend order.
func repositoryBatches(pending []patch.Entry) [][]patch.Entry {
	var batches [][]patch.Entry
	for i, p := range pending {
		if i == 0 || pending[i-1].Repository != p.Repository {
			batches = append(batches, nil)
		}
		batches[len(batches)-1] = append(batches[len(batches)-1], p)
	}

	return batches
}
