// Package cli is the portal command line. Every command runs against a
// SessionManager backed by the HTTP auth client.
package cli

import (
	"fmt"

	"tourism-portal/internal/authclient"
	"tourism-portal/internal/authcontext"
	"tourism-portal/internal/config"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// portal holds what the subcommands share once the root has run
type portal struct {
	cfg     config.PortalConfig
	logger  *zap.Logger
	client  *authclient.Client
	session *authcontext.SessionManager

	apiURL    string
	tokenFile string
	debug     bool
}

// NewRootCmd builds the portal command tree. Flags override PORTAL_* env vars.
func NewRootCmd() *cobra.Command {
	p := &portal{}

	root := &cobra.Command{
		Use:   "portal",
		Short: "Tourism portal account tools",
		Long: `portal signs you in to the tourism portal API and shows who you are.

Tokens from "login --remember" are kept in the token file and survive
between commands. Without --remember the login lasts for the running
process only, which makes the interactive shell the place to use it.

Examples:
  portal login --email you@example.com --remember
  portal status
  portal shell
  portal logout`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return p.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if p.logger != nil {
				_ = p.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&p.apiURL, "api-url", "", "auth API base URL (env PORTAL_API_URL)")
	root.PersistentFlags().StringVar(&p.tokenFile, "token-file", "", "where remembered tokens are kept (env PORTAL_TOKEN_FILE)")
	root.PersistentFlags().BoolVar(&p.debug, "debug", false, "log session changes to stderr (env PORTAL_DEBUG)")

	root.AddCommand(
		newLoginCmd(p),
		newLogoutCmd(p),
		newStatusCmd(p),
		newShellCmd(p),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

func (p *portal) setup(cmd *cobra.Command) error {
	p.cfg = config.LoadPortal()
	if p.apiURL != "" {
		p.cfg.APIURL = p.apiURL
	}
	if p.tokenFile != "" {
		p.cfg.TokenFile = p.tokenFile
	}
	if p.debug {
		p.cfg.Debug = true
	}

	p.logger = zap.NewNop()
	if p.cfg.Debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		p.logger = logger
	}

	tokens := authclient.NewRememberingStore(authclient.NewFileTokenStore(p.cfg.TokenFile))
	client, err := authclient.New(authclient.Config{
		BaseURL: p.cfg.APIURL,
		Timeout: p.cfg.Timeout,
		Device:  p.cfg.Device,
	}, tokens, p.logger)
	if err != nil {
		return err
	}
	p.client = client

	p.session = authcontext.NewSessionManager(client, p.logger)
	p.session.Subscribe(func(s authcontext.State) {
		p.logger.Debug("session changed",
			zap.Bool("authenticated", s.IsAuthenticated),
			zap.Bool("loading", s.IsLoading),
			zap.String("error", s.Error),
		)
	})
	p.session.Initialize(cmd.Context())
	return nil
}
