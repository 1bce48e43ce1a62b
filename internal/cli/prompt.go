package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
)

// Prompter — построчный ввод ответов пользователя.
// Пустая строка — допустимый ответ; конец ввода возвращается как io.EOF.
type Prompter interface {
	Line(prompt string) (string, error)
	Password(prompt string) (string, error)
	Close() error
}

// newPrompter выбирает readline для терминала и прямое чтение для
// каналов и файлов (или при direct).
func newPrompter(stdin io.Reader, stdout io.Writer, direct bool) (Prompter, error) {
	if f, ok := stdin.(*os.File); ok && !direct && readline.IsTerminal(int(f.Fd())) {
		return newInteractivePrompter(stdout)
	}
	return newDirectPrompter(stdin, stdout), nil
}

// directPrompter читает строки из произвольного потока без обработки
// управляющих последовательностей.
type directPrompter struct {
	r   *bufio.Reader
	out io.Writer
}

func newDirectPrompter(r io.Reader, out io.Writer) *directPrompter {
	return &directPrompter{r: bufio.NewReader(r), out: out}
}

func (p *directPrompter) Line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Password при прямом чтении не скрывает ввод.
func (p *directPrompter) Password(prompt string) (string, error) {
	return p.Line(prompt)
}

func (p *directPrompter) Close() error {
	return nil
}

// interactivePrompter — ввод через readline: редактирование строки,
// история и скрытый ввод пароля.
type interactivePrompter struct {
	rl *readline.Instance
}

func newInteractivePrompter(stdout io.Writer) (*interactivePrompter, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: "> ",
		Stdout: stdout,
	})
	if err != nil {
		return nil, fmt.Errorf("create readline config: %w", err)
	}
	return &interactivePrompter{rl: rl}, nil
}

func (p *interactivePrompter) Line(prompt string) (string, error) {
	p.rl.SetPrompt(prompt)
	line, err := p.rl.Readline()
	if err == readline.ErrInterrupt {
		return "", errCancelled
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (p *interactivePrompter) Password(prompt string) (string, error) {
	pw, err := p.rl.ReadPassword(prompt)
	if err == readline.ErrInterrupt {
		return "", errCancelled
	}
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func (p *interactivePrompter) Close() error {
	return p.rl.Close()
}
