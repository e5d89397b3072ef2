package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sportsmockery/gm-trade-engine/internal/config"
	"github.com/sportsmockery/gm-trade-engine/internal/fingerprint"
	"github.com/sportsmockery/gm-trade-engine/internal/grader"
	"github.com/sportsmockery/gm-trade-engine/internal/model"
	"github.com/sportsmockery/gm-trade-engine/internal/store"
	"github.com/sportsmockery/gm-trade-engine/internal/trade"
)

type rootOptions struct {
	configPath string
	draftYear  int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "tradectl",
		Short:        "Fingerprint, value and grade GM trade proposals",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	root.PersistentFlags().IntVar(&opts.draftYear, "draft-year", 0, "upcoming draft year (0 derives it from the clock)")

	root.AddCommand(
		newFingerprintCmd(),
		newValuateCmd(opts),
		newGradeCmd(opts),
	)
	return root
}

// load resolves configuration the same way the server does, then applies
// command-line overrides.
func (o *rootOptions) load() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.LoadFile(o.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", o.configPath, err)
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if o.draftYear != 0 {
		cfg.Valuation.DraftYear = o.draftYear
	}
	return cfg, cfg.Validate()
}

func newFingerprintCmd() *cobra.Command {
	var (
		file      string
		canonical bool
	)
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the fingerprint of a proposal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := readProposal(cmd, file)
			if err != nil {
				return err
			}
			if err := p.Validate(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), fingerprint.Compute(p))
			if canonical {
				fmt.Fprintln(cmd.OutOrStdout(), fingerprint.Canonical(p))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "proposal JSON file, - for stdin")
	cmd.Flags().BoolVar(&canonical, "canonical", false, "also print the canonical form")
	return cmd
}

const valuateExample = `  tradectl valuate --sport nfl --pick 2026-R1-P12
  tradectl valuate --sport nba --asset '{"kind":"player","id":"p1","position":"PG","age":31,"performance_tier":"elite","contract_years_remaining":2}'`

func newValuateCmd(opts *rootOptions) *cobra.Command {
	var sport, pick, asset string
	cmd := &cobra.Command{
		Use:     "valuate",
		Short:   "Value a single asset",
		Example: valuateExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (pick == "") == (asset == "") {
				return errors.New("exactly one of --pick or --asset is required")
			}

			var (
				a   model.Asset
				err error
			)
			if pick != "" {
				a, err = model.ParsePickTicker(pick)
			} else {
				a, err = model.DecodeAsset([]byte(asset))
			}
			if err != nil {
				return err
			}

			cfg, err := opts.load()
			if err != nil {
				return err
			}
			engine := cfg.NewEngine()
			svc := trade.NewService(store.NewMemoryStore(), engine, grader.NewHeuristic(engine.Tables()), trade.Options{})
			b, err := svc.Valuate(sport, a)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), b)
		},
	}
	cmd.Flags().StringVar(&sport, "sport", "", "sport code (nfl, nba, mlb, nhl)")
	cmd.Flags().StringVar(&pick, "pick", "", "draft pick ticker, e.g. 2026-R1-P12-CHI")
	cmd.Flags().StringVar(&asset, "asset", "", "asset JSON with a kind discriminator")
	_ = cmd.MarkFlagRequired("sport")
	return cmd
}

func newGradeCmd(opts *rootOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade a proposal anonymously",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := readProposal(cmd, file)
			if err != nil {
				return err
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			engine := cfg.NewEngine()
			var g grader.Grader = grader.NewHeuristic(engine.Tables())
			if cfg.Grader.Provider == config.ProviderChatGPT {
				g, err = grader.NewChatGPT(cfg.Grader.APIKey, cfg.Grader.Model, cfg.Grader.Attempts, cfg.Grader.Backoff)
				if err != nil {
					return err
				}
			}

			svc := trade.NewService(store.NewMemoryStore(), engine, g, trade.Options{
				Policy:        cfg.Policy,
				GraderName:    cfg.Grader.Provider,
				GraderTimeout: cfg.Grader.Timeout,
			})
			sub, err := svc.SubmitTrade(cmd.Context(), trade.SubmitRequest{Proposal: p})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sub)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "proposal JSON file, - for stdin")
	return cmd
}

func readProposal(cmd *cobra.Command, file string) (model.TradeProposal, error) {
	var (
		data []byte
		err  error
	)
	if file == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(file)
	}
	if err != nil {
		return model.TradeProposal{}, fmt.Errorf("read proposal: %w", err)
	}

	var p model.TradeProposal
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return model.TradeProposal{}, fmt.Errorf("decode proposal: %w", err)
	}
	return p, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
