package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Hsyst/hps-cli/pkg/client"
	"github.com/Hsyst/hps-cli/pkg/config"
	"github.com/Hsyst/hps-cli/pkg/controller"
	"github.com/Hsyst/hps-cli/pkg/dispatch"
	"github.com/Hsyst/hps-cli/pkg/log"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hpscli",
	Short:   "hps-cli - client for the Hsyst P2P content and naming network",
	Version: Version,
	RunE:    runREPL,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"hps-cli version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.Flags().String("data-dir", "", "Data directory (defaults to ~/.hps-cli)")
	rootCmd.Flags().String("server", "", "Server address (overrides config.yaml)")
	rootCmd.Flags().Bool("tls-skip-verify", false, "Skip TLS certificate verification")
	rootCmd.Flags().Bool("no-cli", false, "Run without an interactive REPL, serving only the controller-file IPC bridge")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func runREPL(cmd *cobra.Command, args []string) error {
	dataDirFlag, _ := cmd.Flags().GetString("data-dir")
	serverFlag, _ := cmd.Flags().GetString("server")
	tlsSkip, _ := cmd.Flags().GetBool("tls-skip-verify")
	noCLI, _ := cmd.Flags().GetBool("no-cli")

	dataDir := dataDirFlag
	if dataDir == "" {
		dataDir = config.Default().DataDir
	}
	cfg, err := config.Load(dataDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if serverFlag != "" {
		cfg.ServerAddr = serverFlag
	}
	if tlsSkip {
		cfg.TLSSkipVerify = true
	}

	c, err := client.New(cfg.DataDir, cfg.ServerAddr, cfg.TLSSkipVerify)
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer c.Close()

	d := dispatch.New(c)
	dispatch.RegisterDefaultVerbs(d)

	monitor := controller.NewMonitor(controller.DefaultPaths(cfg.DataDir), func(command string, cmdLog *controller.CommandLog) (bool, string) {
		res := d.Dispatch(command)
		return res.Success, res.Message
	})
	if err := monitor.Cleanup(); err != nil {
		log.WithComponent("main").Warn().Err(err).Msg("controller cleanup failed")
	}
	monitor.Start()
	defer monitor.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if noCLI {
		<-sigCh
		return nil
	}

	return repl(d, sigCh)
}

func repl(d *dispatch.Dispatcher, sigCh chan os.Signal) error {
	fmt.Println("hps-cli — type 'help' for a list of commands, 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)

	lineCh := make(chan string)
	go func() {
		for scanner.Scan() {
			lineCh <- scanner.Text()
		}
		close(lineCh)
	}()

	for {
		fmt.Print("> ")
		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
			return nil
		case line, ok := <-lineCh:
			if !ok {
				return nil
			}
			res := d.Dispatch(line)
			if res.Message != "" {
				fmt.Println(res.Message)
			}
			if line == "exit" {
				return nil
			}
		}
	}
}
