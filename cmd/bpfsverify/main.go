package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/qinglongcn/bpfsverify"
	"github.com/qinglongcn/bpfsverify/txscript"
	"github.com/qinglongcn/bpfsverify/wire"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:           "bpfsverify",
		Short:         "Standalone transaction verification node",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return bpfsverify.SetLog("", "", logLevel)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML options file")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level")

	root.AddCommand(decodeCmd(), verifyCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <tx>",
		Short: "Print a transaction as JSON; <tx> is hex or a file path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := readTx(afero.NewOsFs(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(bpfsverify.Standardized(tx))
		},
	}
}

func verifyCmd() *cobra.Command {
	var (
		prevs         []string
		allowDisabled bool
	)
	cmd := &cobra.Command{
		Use:   "verify <tx>",
		Short: "Verify a transaction against the given source transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs := afero.NewOsFs()
			ctx := cmd.Context()

			tx, err := readTx(fs, args[0])
			if err != nil {
				return err
			}

			history, err := bpfsverify.OpenHistory("", nil)
			if err != nil {
				return err
			}
			defer history.Close()

			for _, p := range prevs {
				prev, err := readTx(fs, p)
				if err != nil {
					return err
				}
				if err := history.SaveTransaction(ctx, prev); err != nil {
					return fmt.Errorf("source tx %s: %w", prev.Hash(), err)
				}
			}

			cache := bpfsverify.NewInputResolutionCache(tx, nil, history, nil, 0)
			index, err := cache.Resolve(ctx, false)
			if err != nil {
				return err
			}

			var flags txscript.ScriptFlags
			if allowDisabled {
				flags |= txscript.ScriptAllowDisabledOpcodes
			}
			res := <-bpfsverify.NewTransactionVerifier(tx, history, flags).Verify(ctx, index)
			if res.Err != nil {
				return res.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s ok, fee %s\n", tx.Hash(), wire.FormatBigValue(res.Fee))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&prevs, "prev", nil, "source transaction, hex or file path (repeatable)")
	cmd.Flags().BoolVar(&allowDisabled, "allow-disabled-opcodes", false, "execute disabled opcodes")
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		dataDir   string
		importDir string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a verification node until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fs := afero.NewOsFs()

			opt := bpfsverify.DefaultOptions()
			if configPath != "" {
				var err error
				if opt, err = bpfsverify.LoadOptions(fs, configPath); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("log-level") || opt.LogLevel == "" {
				opt.LogLevel = logLevel
			}
			if dataDir != "" {
				abs, err := filepath.Abs(dataDir)
				if err != nil {
					return err
				}
				opt.BuildDataDir(abs)
			}
			if opt.InstanceId == "" {
				opt.BuildInstanceId()
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			node, err := bpfsverify.Open(ctx, opt, nil, nil)
			if err != nil {
				return err
			}

			if importDir != "" {
				if err := importTxs(ctx, fs, node, importDir); err != nil {
					node.Close()
					return err
				}
			}

			logrus.Infof("node %s running, press Ctrl+C to stop", opt.InstanceId)
			bpfsverify.WaitForShutdown(node)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "data directory, in memory when empty")
	cmd.Flags().StringVar(&importDir, "import", "", "directory of transactions to submit at startup")
	return cmd
}

// importTxs 按文件名顺序提交目录中的交易
func importTxs(ctx context.Context, fs afero.Fs, node *bpfsverify.Node, dir string) error {
	store, err := bpfsverify.NewFileStore(fs, dir)
	if err != nil {
		return err
	}
	names, err := store.List()
	if err != nil {
		return err
	}

	for _, name := range names {
		tx, err := store.ReadTransaction(name)
		if err != nil {
			logrus.Warnf("skip %s: %v", name, err)
			continue
		}
		fee, err := node.Submit(ctx, tx)
		if err != nil {
			logrus.Warnf("tx %s rejected: %v", tx.Hash(), err)
			continue
		}
		logrus.Infof("tx %s accepted, fee %s", tx.Hash(), wire.FormatBigValue(fee))
	}
	return nil
}

// readTx 把参数当作文件路径读取，文件不存在时当作十六进制文本
func readTx(fs afero.Fs, arg string) (*wire.Transaction, error) {
	if ok, _ := afero.Exists(fs, arg); ok {
		data, err := afero.ReadFile(fs, arg)
		if err != nil {
			return nil, err
		}
		return bpfsverify.DecodeTransaction(data)
	}
	return wire.FromHex(arg)
}
