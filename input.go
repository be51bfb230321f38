package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// InputType identifies which credential a bot is waiting for.
type InputType int

const (
	InputLogin InputType = iota
	InputPassword
	InputSteamGuard
	InputTwoFactor
	InputParentalPIN
)

func (t InputType) String() string {
	switch t {
	case InputLogin:
		return "login"
	case InputPassword:
		return "password"
	case InputSteamGuard:
		return "Steam Guard code"
	case InputTwoFactor:
		return "2FA code"
	case InputParentalPIN:
		return "parental PIN"
	default:
		return "input"
	}
}

// InputProvider supplies credentials the config does not carry. The
// bot blocks in its logon path until the provider returns; an empty
// string abandons the attempt.
type InputProvider interface {
	Request(botName string, inputType InputType) string
}

// consoleInput prompts on stdin. One prompt at a time: concurrent
// bots queue on the mutex rather than interleaving their prompts.
type consoleInput struct {
	mutex  sync.Mutex
	reader *bufio.Reader
}

// NewConsoleInput creates a stdin-backed input provider.
func NewConsoleInput() InputProvider {
	return &consoleInput{reader: bufio.NewReader(os.Stdin)}
}

func (c *consoleInput) Request(botName string, inputType InputType) string {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	fmt.Printf("<%s> Please enter your %s: ", botName, inputType)

	line, err := c.reader.ReadString('\n')
	if err != nil {
		LogWarning("Failed to read %s for bot %s: %v", inputType, botName, err)
		return ""
	}

	return strings.TrimSpace(line)
}
