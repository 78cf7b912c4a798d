package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/BoostryJP/ibet-prime-wst/internal/connection"
	"github.com/BoostryJP/ibet-prime-wst/internal/dvp"
	"github.com/BoostryJP/ibet-prime-wst/internal/keystore"
	"github.com/BoostryJP/ibet-prime-wst/internal/models"
)

// passwordEnv is read when --password is not given
const passwordEnv = "IBET_WST_EOA_PASSWORD"

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func eoaPassword(cmd *cobra.Command) (string, error) {
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		return "", fmt.Errorf("EOA password is required (--password or %s)", passwordEnv)
	}
	return password, nil
}

// withApplication runs fn against a fully initialized application that is not started
func withApplication(fn func(ctx context.Context, app *Application) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := NewApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Stop()
	return fn(app.ctx, app)
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Transaction monitor commands",
}

var monitorOnceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single sweep over the pending transactions and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApplication(func(ctx context.Context, app *Application) error {
			result, err := app.monitor.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}
			return printJSON(result)
		})
	},
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Signing account commands",
}

var accountImportCmd = &cobra.Command{
	Use:   "import <keyfile>",
	Short: "Import an encrypted keyfile after checking its password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := eoaPassword(cmd)
		if err != nil {
			return err
		}
		keyJSON, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read keyfile: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStorage(&cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close()

		account, err := keystore.NewProvider(store).Import(cmd.Context(), keyJSON, password)
		if err != nil {
			return fmt.Errorf("failed to import account: %w", err)
		}
		fmt.Printf("✓ Imported account %s\n", account.AccountAddress)
		return nil
	},
}

var deliveryCmd = &cobra.Command{
	Use:   "delivery",
	Short: "DVP delivery commands",
}

var deliveryCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a delivery as the seller",
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := eoaPassword(cmd)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		req := dvp.CreateRequest{Password: password}
		req.SellerAddress, _ = flags.GetString("seller")
		req.TokenAddress, _ = flags.GetString("token")
		req.BuyerAddress, _ = flags.GetString("buyer")
		req.AgentAddress, _ = flags.GetString("agent")
		req.Amount, _ = flags.GetUint64("amount")
		req.Data, _ = flags.GetString("data")

		return withDelivery(func(ctx context.Context, svc *dvp.Service) (*models.EthIbetWSTTx, error) {
			return svc.CreateDelivery(ctx, req)
		})
	},
}

// deliveryActionCmd builds the command for an action on an existing delivery
func deliveryActionCmd(use, short string, act func(*dvp.Service, context.Context, dvp.ActionRequest) (*models.EthIbetWSTTx, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use + " <delivery-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid delivery id %q: %w", args[0], err)
			}
			password, err := eoaPassword(cmd)
			if err != nil {
				return err
			}
			caller, _ := cmd.Flags().GetString("caller")

			req := dvp.ActionRequest{CallerAddress: caller, Password: password, DeliveryID: id}
			return withDelivery(func(ctx context.Context, svc *dvp.Service) (*models.EthIbetWSTTx, error) {
				return act(svc, ctx, req)
			})
		},
	}
	cmd.Flags().String("caller", "", "account performing the action")
	cmd.Flags().String("password", "", "EOA password of the caller")
	cmd.MarkFlagRequired("caller")
	return cmd
}

func withDelivery(fn func(ctx context.Context, svc *dvp.Service) (*models.EthIbetWSTTx, error)) error {
	return withApplication(func(ctx context.Context, app *Application) error {
		if app.delivery == nil {
			return fmt.Errorf("dvp.exchange_address is not configured")
		}
		tx, err := fn(ctx, app.delivery)
		if tx != nil {
			if printErr := printJSON(tx); printErr != nil {
				return printErr
			}
		}
		return err
	})
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Node: %s (chain %d)\n", cfg.Chain.NodeURL, cfg.Chain.ChainID)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Finality: %s\n", cfg.Monitor.FinalityMode)
		if cfg.DVP.ExchangeAddress != "" {
			fmt.Printf("DVP exchange: %s\n", cfg.DVP.ExchangeAddress)
		}
		return nil
	},
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test node and database connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		fmt.Printf("Testing node connection to %s...\n", cfg.Chain.NodeURL)
		conn := connection.NewConnectionManager(&cfg.Chain)
		defer conn.Close()
		if err := conn.HealthCheckWithContext(ctx); err != nil {
			return fmt.Errorf("failed to connect to node: %w", err)
		}
		chain := connection.NewChainClient(conn, &cfg.Chain)
		latest, err := chain.GetLatestBlockNumber(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Node connection successful (latest block %d)\n", latest)

		if finalized, err := chain.GetFinalizedBlockNumber(ctx); err != nil {
			fmt.Printf("✗ Finalized block tag not supported: %v\n", err)
		} else {
			fmt.Printf("✓ Finalized block %d\n", finalized)
		}

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := openStorage(&cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := store.Ping(); err != nil {
			return fmt.Errorf("storage ping failed: %w", err)
		}
		fmt.Println("✓ Storage connection successful")

		fmt.Println("\nAll connectivity tests passed! ✓")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("ibet-WST settlement %s\n", AppVersion)
	},
}

func init() {
	monitorCmd.AddCommand(monitorOnceCmd)

	accountImportCmd.Flags().String("password", "", "EOA password of the keyfile")
	accountCmd.AddCommand(accountImportCmd)

	createFlags := deliveryCreateCmd.Flags()
	createFlags.String("seller", "", "seller account")
	createFlags.String("token", "", "token address")
	createFlags.String("buyer", "", "buyer account")
	createFlags.String("agent", "", "agent account")
	createFlags.Uint64("amount", 0, "amount to deliver")
	createFlags.String("data", "", "free-form delivery data")
	createFlags.String("password", "", "EOA password of the seller")
	for _, name := range []string{"seller", "token", "buyer", "agent", "amount"} {
		deliveryCreateCmd.MarkFlagRequired(name)
	}

	deliveryCmd.AddCommand(
		deliveryCreateCmd,
		deliveryActionCmd("cancel", "Cancel a delivery as the seller or the buyer", (*dvp.Service).CancelDelivery),
		deliveryActionCmd("confirm", "Confirm a delivery as the buyer", (*dvp.Service).ConfirmDelivery),
		deliveryActionCmd("finish", "Finish a confirmed delivery as the agent", (*dvp.Service).FinishDelivery),
		deliveryActionCmd("abort", "Abort a confirmed delivery as the agent", (*dvp.Service).AbortDelivery),
	)

	configCmd.AddCommand(validateConfigCmd)

	rootCmd.AddCommand(monitorCmd, accountCmd, deliveryCmd, configCmd, testCmd, versionCmd)
}
