package orchestration

import (
	"fmt"
	"strings"

	"github.com/koscakluka/ema-tutor/core/llms"
	"github.com/koscakluka/ema-tutor/core/memory"
)

const tutorName = "Ema"

const maxGreetingTopics = 3

// personaMessage takes facts and topics from m, but language, level and
// role-play from the settings the turn was queued with.
func personaMessage(m *memory.Memory, settings turnSettings) llms.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a warm and patient spoken language tutor. ", tutorName)
	fmt.Fprintf(&b, "The conversation is spoken aloud in %s, so answer in short, natural sentences without lists, markdown or emoji. ", settings.language)
	fmt.Fprintf(&b, "The student's level is %s; match your vocabulary and pace to it. ", settings.level)
	fmt.Fprintf(&b, "Call the student %s. ", m.UserNameOr(memory.DefaultUserName))

	if destination := m.DestinationOr(""); destination != "" {
		fmt.Fprintf(&b, "They are preparing for a trip to %s. ", destination)
	}
	if topics := m.RecentTopics(maxGreetingTopics); len(topics) > 0 {
		fmt.Fprintf(&b, "Recent topics: %s. ", strings.Join(topics, ", "))
	}
	for _, key := range []string{memory.FactHometown, memory.FactOccupation} {
		if value, ok := m.Facts[key]; ok {
			fmt.Fprintf(&b, "Their %s: %s. ", key, value)
		}
	}
	if rolePlay := settings.rolePlay; rolePlay != nil && rolePlay.Scenario != "" {
		fmt.Fprintf(&b, "You are role-playing this scenario with the student: %s. ", rolePlay.Scenario)
		if rolePlay.Character != "" {
			fmt.Fprintf(&b, "Stay in character as %s. ", rolePlay.Character)
		}
	}
	b.WriteString("Always end with a question or prompt that keeps the student talking.")
	return llms.SystemMessage(b.String())
}

func correctionProtocolMessage(config ReplyConfig) llms.Message {
	return llms.SystemMessage(fmt.Sprintf(
		"When the student makes a grammar or vocabulary mistake, start your reply with a short correction wrapped in %s and %s, "+
			"then continue the conversation normally. Text inside the markers is shown to the student but never spoken. "+
			"Never open a correction without closing it. If there is nothing to correct, do not use the markers.",
		config.CorrectionStartMarker, config.CorrectionEndMarker,
	))
}

// greeting is spoken when a session becomes active.
func greeting(m *memory.Memory) string {
	if m.TotalInteractions == 0 {
		return fmt.Sprintf("Hi, I'm %s, your language tutor! What's your name, and what would you like to talk about today?", tutorName)
	}

	name := m.UserNameOr("")
	welcome := "Welcome back!"
	if name != "" {
		welcome = fmt.Sprintf("Welcome back, %s!", name)
	}

	topics := m.RecentTopics(maxGreetingTopics)
	switch len(topics) {
	case 0:
		return welcome + " What would you like to practice today?"
	case 1:
		return fmt.Sprintf("%s Last time we talked about %s. Shall we continue, or try something new?", welcome, topics[0])
	default:
		last := len(topics) - 1
		return fmt.Sprintf("%s Last time we talked about %s and %s. Shall we continue, or try something new?",
			welcome, strings.Join(topics[:last], ", "), topics[last])
	}
}

// speechRateForLevel slows synthesis down for learners who need it.
func speechRateForLevel(level string) float64 {
	switch level {
	case "beginner":
		return 0.85
	case "advanced":
		return 1.1
	}
	return 1.0
}
