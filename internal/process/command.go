package process

import (
	"strconv"
	"strings"
)

// Command is an executable and its arguments, run without a shell.
type Command struct {
	path string
	args []string
}

func NewCommand(path string, args ...string) Command {
	copied := make([]string, len(args))
	copy(copied, args)
	return Command{path: path, args: copied}
}

func (command Command) Path() string {
	return command.path
}

// Args returns a copy of the argument list.
func (command Command) Args() []string {
	copied := make([]string, len(command.args))
	copy(copied, command.args)
	return copied
}

// String renders the command for logs, quoting words a shell would split.
func (command Command) String() string {
	words := make([]string, 0, len(command.args)+1)
	for _, word := range append([]string{command.path}, command.args...) {
		words = append(words, quoteWord(word))
	}
	return strings.Join(words, " ")
}

func quoteWord(word string) string {
	if word == "" {
		return "''"
	}
	if !strings.ContainsAny(word, " \t\n'\"\\$`*?[]{}()<>|&;#~!") {
		return word
	}
	if !strings.Contains(word, "'") {
		return "'" + word + "'"
	}
	return strconv.Quote(word)
}
