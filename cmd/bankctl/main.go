package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eqtlab/bank-syncer/config"
	"github.com/eqtlab/bank-syncer/pkg/cache"
	"github.com/eqtlab/bank-syncer/pkg/db"
	"github.com/eqtlab/bank-syncer/pkg/logger"
	"github.com/eqtlab/bank-syncer/pkg/postgres"
	"github.com/eqtlab/bank-syncer/powens"
	storage "github.com/eqtlab/bank-syncer/storage/postgres"
	"github.com/eqtlab/bank-syncer/syncer"
)

// env wires the CLI's collaborators: config, storage-backed token provider
// and the API client.
type env struct {
	cfg    config.Config
	log    *logger.Logger
	auth   *powens.Auth
	client *powens.Client
	close  func()
}

func newEnv(ctx context.Context) (*env, error) {
	cfg, err := config.ParseEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	log := logger.New(cfg.Debug)

	pool, err := postgres.Connect(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	if err := postgres.Migrate(cfg.DB.URL, cfg.DB.MigrationsPath); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	store := storage.New(db.New(pool, log))

	tokenCache, err := cache.New(ctx, cfg.Cache)
	if err != nil {
		log.Warn("redis unavailable, continuing without token cache", zap.Error(err))
		tokenCache = nil
	}

	auth := powens.NewAuth(cfg.Powens, store, tokenCache, log.Logger)

	return &env{
		cfg:    cfg,
		log:    log,
		auth:   auth,
		client: powens.NewClient(cfg.Powens, auth, log.Logger),
		close: func() {
			tokenCache.Close()
			pool.Close()
		},
	}, nil
}

func main() {
	root := &cobra.Command{
		Use:           "bankctl",
		Short:         "Operator CLI for the bank transaction syncer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		authenticateCmd(),
		codeCmd(),
		webviewCmd(),
		accountsCmd(),
		transactionsCmd(),
		activateCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func authenticateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "authenticate",
		Short: "Acquire and persist a permanent auth token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			token, err := e.auth.Token(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println(token)
			return nil
		},
	}
}

func codeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "code",
		Short: "Exchange the permanent token for a one-time code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			code, err := e.auth.TempCode(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Println(code)
			return nil
		},
	}
}

func webviewCmd() *cobra.Command {
	var lang, flow string

	cmd := &cobra.Command{
		Use:   "webview",
		Short: "Print the Connect webview URL for bank enrollment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			url, err := e.auth.WebviewURL(cmd.Context(), lang, flow)
			if err != nil {
				return err
			}

			fmt.Println(url)
			return nil
		},
	}

	cmd.Flags().StringVar(&lang, "lang", "fr", "webview language")
	cmd.Flags().StringVar(&flow, "flow", "manage", "webview flow")

	return cmd
}

func accountsCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List bank accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			accounts, err := e.client.FetchAccounts(cmd.Context(), all)
			if err != nil {
				return err
			}

			return printJSON(accounts)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include disabled accounts")

	return cmd
}

func transactionsCmd() *cobra.Command {
	var limit, pages int

	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "List recent transactions across all accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			// A page-capped client, so listing does not walk the full history.
			srcCfg := e.cfg.Powens
			srcCfg.MaxPages = pages
			client := powens.NewClient(srcCfg, e.auth, e.log.Logger)

			txs, err := client.FetchTransactions(cmd.Context(), syncer.FetchWindow{}, limit)
			if err != nil {
				return err
			}

			raws := make([]json.RawMessage, 0, len(txs))
			for _, tx := range txs {
				raws = append(raws, tx.Raw)
			}

			return printJSON(raws)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "transactions per page")
	cmd.Flags().IntVar(&pages, "pages", 1, "pages to fetch, 0 for the full history")

	return cmd
}

func activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <account-id>",
		Short: "Activate a disabled account (grant user consent)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var accountID int64
			if _, err := fmt.Sscan(args[0], &accountID); err != nil {
				return fmt.Errorf("invalid account id %q", args[0])
			}

			e, err := newEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.close()

			result, err := e.client.ActivateAccount(cmd.Context(), accountID)
			if err != nil {
				return err
			}

			return printJSON(result)
		},
	}
}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	fmt.Println(string(encoded))
	return nil
}
