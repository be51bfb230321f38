package main

import (
	"fmt"
	"strconv"
	"strings"
)

// DispatchCommand executes one free-text command and returns the
// response. The grammar is "<command> [targets] [args]"; commands that
// take targets default to the given bot when targets are omitted.
// Shared by the chat handler and the HTTP API.
func DispatchCommand(app *AppContext, defaultBot *Bot, line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "Unknown command"
	}

	command := strings.ToLower(fields[0])
	args := fields[1:]

	switch command {
	case "status":
		return commandStatus(app, defaultBot, args)
	case "start":
		return forEachTarget(app, defaultBot, args, func(bot *Bot) string {
			_, message := bot.Actions().Start()
			return message
		})
	case "stop":
		return forEachTarget(app, defaultBot, args, func(bot *Bot) string {
			_, message := bot.Actions().Stop()
			return message
		})
	case "pause":
		// A numeric tail is the resume delay, whether or not targets
		// precede it
		resumeIn := 0
		if len(args) > 0 {
			if parsed, err := strconv.Atoi(args[len(args)-1]); err == nil {
				resumeIn = parsed
				args = args[:len(args)-1]
			}
		}
		return forEachTarget(app, defaultBot, args, func(bot *Bot) string {
			_, message := bot.Actions().Pause(resumeIn)
			return message
		})
	case "resume":
		return forEachTarget(app, defaultBot, args, func(bot *Bot) string {
			_, message := bot.Actions().Resume()
			return message
		})
	case "farm":
		return forEachTarget(app, defaultBot, args, func(bot *Bot) string {
			_, message := bot.Actions().Farm()
			return message
		})
	case "loot":
		return forEachTarget(app, defaultBot, args, func(bot *Bot) string {
			_, message := bot.Actions().SendInventory()
			return message
		})
	case "redeem":
		return commandRedeem(app, defaultBot, args)
	case "help":
		return "Commands: status, start, stop, pause, resume, farm, loot, redeem, help"
	default:
		return fmt.Sprintf("Unknown command: %s", command)
	}
}

// resolveTargets picks the bots a command applies to: an explicit
// targeting expression when given, otherwise the default bot.
func resolveTargets(app *AppContext, defaultBot *Bot, args []string) []*Bot {
	if len(args) == 0 {
		if defaultBot == nil {
			return nil
		}
		return []*Bot{defaultBot}
	}

	return app.Registry.ExpandTargets(strings.Join(args, ","))
}

func forEachTarget(app *AppContext, defaultBot *Bot, args []string, action func(*Bot) string) string {
	bots := resolveTargets(app, defaultBot, args)
	if len(bots) == 0 {
		return "No matching bots"
	}

	lines := make([]string, 0, len(bots))
	for _, bot := range bots {
		lines = append(lines, fmt.Sprintf("%s: %s", bot.Name, action(bot)))
	}
	return strings.Join(lines, "\n")
}

func commandStatus(app *AppContext, defaultBot *Bot, args []string) string {
	var bots []*Bot
	if len(args) == 0 && defaultBot == nil {
		bots = app.Registry.ExpandTargets("all")
	} else {
		bots = resolveTargets(app, defaultBot, args)
	}

	if len(bots) == 0 {
		return "No matching bots"
	}

	lines := make([]string, 0, len(bots))
	for _, bot := range bots {
		lines = append(lines, bot.Actions().Status())
	}
	return strings.Join(lines, "\n")
}

// commandRedeem splits trailing arguments into targets and keys; keys
// are recognized by their CD-key shape, everything before them is the
// targeting expression.
func commandRedeem(app *AppContext, defaultBot *Bot, args []string) string {
	if len(args) == 0 {
		return "No keys given"
	}

	var targets []string
	var keys []string
	for _, arg := range args {
		if IsValidCdKey(arg) {
			keys = append(keys, arg)
		} else if len(keys) == 0 {
			targets = append(targets, arg)
		}
	}

	if len(keys) == 0 {
		return "No keys given"
	}

	bots := resolveTargets(app, defaultBot, targets)
	if len(bots) == 0 {
		return "No matching bots"
	}

	lines := make([]string, 0, len(bots))
	for _, bot := range bots {
		_, message := bot.Actions().Redeem(keys)
		lines = append(lines, fmt.Sprintf("%s: %s", bot.Name, message))
	}
	return strings.Join(lines, "\n")
}
