package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	promptURL   = "🔗 Enter URL to scrape: "
	promptMode  = "🧠 What to scrape? (email, jpg, pdf, all, html): "
	promptDepth = "🔁 Depth (0 = just this page, 1 = follow links once, 2 = twice): "
)

// prompter asks for values not given on the command line.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out}
}

// ask prints question and returns one trimmed line. EOF yields what was read.
func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

type crawlInput struct {
	url   string
	mode  string
	depth string
}

// fill prompts, in order, for every field still empty.
func (p *prompter) fill(in *crawlInput) error {
	fields := []struct {
		value    *string
		question string
	}{
		{&in.url, promptURL},
		{&in.mode, promptMode},
		{&in.depth, promptDepth},
	}
	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		v, err := p.ask(f.question)
		if err != nil {
			return err
		}
		*f.value = v
	}
	return nil
}
