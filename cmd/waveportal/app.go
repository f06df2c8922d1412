package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"

	"github.com/comigor/waveportal-go/internal/config"
	"github.com/comigor/waveportal-go/internal/contract"
	"github.com/comigor/waveportal-go/internal/logger"
	"github.com/comigor/waveportal-go/internal/portal"
	"github.com/comigor/waveportal-go/internal/server"
	"github.com/comigor/waveportal-go/internal/sessioncache"
	"github.com/comigor/waveportal-go/internal/ui"
	"github.com/comigor/waveportal-go/internal/wallet"
)

type app struct {
	client     *ethclient.Client
	store      *sessioncache.Store
	controller *portal.Controller
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	logger.SetLevel(cfg.Log.Level)
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config, prompter wallet.Prompter) (*app, error) {
	client, chainID, err := contract.Dial(ctx, cfg.Node.RPCURL, cfg.Node.ChainID)
	if err != nil {
		return nil, err
	}
	logger.L.Info("connected to node", "url", cfg.Node.RPCURL, "chain_id", chainID, "contract", contract.Address.Hex())

	signers := wallet.NewKeystoreProvider(cfg.Wallet.KeystoreDir, chainID)
	uauthOpts := wallet.DefaultUAuthOptions(cfg.UAuth.AuthURL, cfg.UAuth.TokenURL)
	if cfg.UAuth.IDTokenKeyFile != "" {
		if uauthOpts.IDTokenKey, err = wallet.LoadIDTokenKey(cfg.UAuth.IDTokenKeyFile); err != nil {
			client.Close()
			return nil, err
		}
	} else {
		logger.L.Warn("uauth id token signatures are not verified; set uauth.id_token_key_file")
	}
	uauth := wallet.NewUAuthProvider(uauthOpts, signers, nil)
	store := sessioncache.New(cfg.Wallet.SessionDB)
	modal := wallet.NewModal(store, prompter, signers, uauth)

	ctl := portal.New(modal, portal.FromContract(contract.New(client)), portal.Options{
		ReadTimeout:    cfg.Node.ReadTimeout,
		ConfirmTimeout: cfg.Node.ConfirmTimeout,
	})
	return &app{client: client, store: store, controller: ctl}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logger.L.Warn("closing session cache failed", "error", err)
	}
	a.client.Close()
}

func runTUI(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// the terminal belongs to the page
	logFile, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger.SetOutput(logFile)

	prompter, requests := ui.NewFormPrompter()
	a, err := newApp(ctx, cfg, prompter)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.controller.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		err := ui.Run(gctx, a.controller, requests)
		if errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		return err
	})
	return g.Wait()
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	prompter, err := wallet.NewStaticPrompter(cfg.Wallet.Provider, cfg.Wallet.PassphraseFile)
	if err != nil {
		return err
	}
	a, err := newApp(ctx, cfg, prompter)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.controller.Run(gctx)
	})
	g.Go(func() error {
		return server.Serve(gctx, addr, server.NewMux(a.controller))
	})
	return g.Wait()
}
