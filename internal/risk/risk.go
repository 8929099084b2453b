// Package risk maps an action and its sensitivity profile to a 0-100 score.
package risk

import (
	"strings"

	"github.com/davidahmann/agentgate/pkg/types"
)

const (
	MinScore = 0
	MaxScore = 100
)

var baseRisk = map[string]int{
	"chat.respond":                5,
	"memory.read":                 15,
	"memory.write":                25,
	"notes.create":                15,
	"notes.search":                10,
	"todos.create":                10,
	"todos.list":                  5,
	"todos.createList":            5,
	"todos.listLists":             5,
	"todos.updateList":            5,
	"todos.update":                10,
	"todos.complete":              5,
	"meeting.summarize":           15,
	"calendar.proposeHold":        35,
	"email.draftReply":            25,
	"email.send":                  70,
	"file.read":                   20,
	"file.write":                  50,
	"file.delete":                 80,
	"system.modify":               90,
	"install.software":            90,
	"browser.navigate":            40,
	"api.external_post":           75,
	"action.run":                  70,
	"desktop.run":                 90,
	"desktop.launch":              85,
	"desktop.input":               80,
	"desktop.key":                 80,
	"desktop.mouse":               80,
	"desktop.clipboard":           70,
	"desktop.screenshot":          75,
	"desktop.vision":              75,
	"desktop.uia":                 85,
	"desktop.step":                90,
	"desktop.panic":               30,
	"messaging.slackPost":         70,
	"messaging.telegramSend":      40,
	"messaging.telegramVoiceSend": 40,
	"messaging.discordSend":       70,
	"messaging.whatsapp.send":     75,
	"messaging.sms.send":          75,
	"finance.transfer":            100,
	"finance.trade":               100,
}

// Input is everything the scorer looks at.
type Input struct {
	ActionType       string
	Sensitivity      types.Sensitivity
	OutboundDomains  []string
	ProtectedPathHit bool
	UnknownDomain    bool
}

// BaseScore returns the table score for actionType or its prefix fallback.
func BaseScore(actionType string) int {
	if score, ok := baseRisk[actionType]; ok {
		return score
	}
	switch {
	case strings.HasPrefix(actionType, "messaging."):
		return 70
	case strings.HasPrefix(actionType, "file."):
		return 50
	case strings.HasPrefix(actionType, "system."):
		return 90
	default:
		return 30
	}
}

// Score applies the additive adjustments to the base score and clamps.
func Score(in Input) int {
	score := BaseScore(in.ActionType)
	s := in.Sensitivity
	if s.PHI {
		score += 20
	}
	if s.PII {
		score += 10
	}
	if s.Secrets {
		score += 25
	}
	// Outbound replies talk about money without moving it.
	if s.Finance && !strings.HasPrefix(in.ActionType, "messaging.") {
		score += 30
	}
	if s.System {
		score += 10
	}
	if in.ProtectedPathHit {
		score += 15
	}
	if in.UnknownDomain {
		score += 15
	}
	if len(in.OutboundDomains) > 3 {
		score += 10
	}
	return clamp(score)
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
