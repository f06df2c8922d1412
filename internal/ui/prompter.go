package ui

import (
	"context"

	"github.com/charmbracelet/huh"
	"github.com/samber/lo"

	"github.com/comigor/waveportal-go/internal/wallet"
)

// Request asks the UI to show a form, or just a notice when Form is nil.
// Reply receives nil once the form is completed and wallet.ErrCancelled when
// it is aborted. Done is closed once nobody waits for the reply anymore; a
// form still shown then is withdrawn.
type Request struct {
	Form   *huh.Form
	Notice string
	Reply  chan error
	Done   <-chan struct{}
}

// FormPrompter answers wallet prompts with huh forms shown by the Model.
type FormPrompter struct {
	requests chan Request
}

// NewFormPrompter returns the prompter and the channel the Model reads from.
func NewFormPrompter() (*FormPrompter, <-chan Request) {
	ch := make(chan Request, 4)
	return &FormPrompter{requests: ch}, ch
}

func (p *FormPrompter) Select(ctx context.Context, title string, options []wallet.Option) (string, error) {
	var choice string
	sel := huh.NewSelect[string]().
		Title(title).
		Options(lo.Map(options, func(o wallet.Option, _ int) huh.Option[string] {
			return huh.NewOption(o.Label, o.Value)
		})...).
		Value(&choice)
	if err := p.ask(ctx, huh.NewForm(huh.NewGroup(sel))); err != nil {
		return "", err
	}
	return choice, nil
}

func (p *FormPrompter) Secret(ctx context.Context, title string) (string, error) {
	var secret string
	in := huh.NewInput().Title(title).EchoMode(huh.EchoModePassword).Value(&secret)
	if err := p.ask(ctx, huh.NewForm(huh.NewGroup(in))); err != nil {
		return "", err
	}
	return secret, nil
}

func (p *FormPrompter) Input(ctx context.Context, title string) (string, error) {
	var text string
	in := huh.NewInput().Title(title).Value(&text)
	if err := p.ask(ctx, huh.NewForm(huh.NewGroup(in))); err != nil {
		return "", err
	}
	return text, nil
}

// Notify shows message without waiting for the user.
func (p *FormPrompter) Notify(ctx context.Context, message string) {
	select {
	case p.requests <- Request{Notice: message}:
	case <-ctx.Done():
	}
}

func (p *FormPrompter) ask(ctx context.Context, form *huh.Form) error {
	reply := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	select {
	case p.requests <- Request{Form: form, Reply: reply, Done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
