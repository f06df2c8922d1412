package wallet

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"

	"github.com/comigor/waveportal-go/internal/logger"
)

// StaticPrompter answers prompts from configuration, for unattended runs.
type StaticPrompter struct {
	Choice     string
	Passphrase string
}

// NewStaticPrompter reads the passphrase from passphraseFile, if set.
func NewStaticPrompter(choice, passphraseFile string) (*StaticPrompter, error) {
	p := &StaticPrompter{Choice: choice}
	if passphraseFile == "" {
		return p, nil
	}
	b, err := os.ReadFile(passphraseFile)
	if err != nil {
		return nil, fmt.Errorf("read passphrase file: %w", err)
	}
	p.Passphrase = strings.TrimRight(string(b), "\r\n")
	return p, nil
}

// Select returns the configured choice when it is offered. Account prompts
// are answered with the first account.
func (p *StaticPrompter) Select(_ context.Context, title string, options []Option) (string, error) {
	if p.Choice != "" && lo.ContainsBy(options, func(o Option) bool { return o.Value == p.Choice }) {
		return p.Choice, nil
	}
	if len(options) > 0 && lo.EveryBy(options, func(o Option) bool { return common.IsHexAddress(o.Value) }) {
		return options[0].Value, nil
	}
	logger.L.Warn("no configured answer for prompt", "title", title)
	return "", ErrCancelled
}

func (p *StaticPrompter) Secret(context.Context, string) (string, error) {
	return p.Passphrase, nil
}

// Input can't be answered unattended.
func (p *StaticPrompter) Input(_ context.Context, title string) (string, error) {
	logger.L.Warn("interactive input requested in unattended mode", "title", title)
	return "", ErrCancelled
}

func (p *StaticPrompter) Notify(_ context.Context, message string) {
	logger.L.Info("wallet notice", "message", message)
}
