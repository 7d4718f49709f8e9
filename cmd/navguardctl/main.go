// Command navguardctl inspects a navguard configuration offline: it
// validates rules, classifies URLs, derives destinations, renders the
// enforcement script and sweeps HTML documents.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"navguard/internal/enforcement"
	"navguard/internal/platform/config"
	"navguard/internal/playback"
	"navguard/internal/policy"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// engine is the offline subset of the server wiring.
type engine struct {
	rules     *policy.RuleSet
	templates playback.Templates
	enf       *enforcement.Enforcer
}

func loadEngine(rulesFile string) (*engine, error) {
	if rulesFile == "" {
		rulesFile = config.GetEnv("RULES_FILE", "")
	}
	s, err := config.LoadSettingsFrom(rulesFile)
	if err != nil {
		return nil, err
	}
	rules, err := policy.NewRuleSet(s.Policy.WithDefaults())
	if err != nil {
		return nil, err
	}
	templates := s.Templates.WithDefaults()
	if err := templates.Validate(rules); err != nil {
		return nil, err
	}
	er := s.Enforcement
	er.TrustedDomains = rules.TrustedDomains()
	enf, err := enforcement.New(er)
	if err != nil {
		return nil, err
	}
	return &engine{rules: rules, templates: templates, enf: enf}, nil
}

func newRootCmd() *cobra.Command {
	var rulesFile string

	root := &cobra.Command{
		Use:          "navguardctl",
		Short:        "Inspect navguard rules offline",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&rulesFile, "rules", "", "YAML rules file (defaults to $RULES_FILE)")

	load := func() (*engine, error) { return loadEngine(rulesFile) }

	root.AddCommand(
		newValidateCmd(load),
		newClassifyCmd(load),
		newDestinationCmd(load),
		newScriptCmd(load),
		newSweepCmd(load),
	)
	return root
}

func newValidateCmd(load func() (*engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and print the effective rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "trusted_domains:    %s\n", strings.Join(e.rules.TrustedDomains(), ", "))
			fmt.Fprintf(out, "essential_prefixes: %s\n", strings.Join(e.rules.EssentialPrefixes(), ", "))
			fmt.Fprintf(out, "blocked_patterns:   %s\n", strings.Join(e.rules.BlockedPatterns(), ", "))
			fmt.Fprintf(out, "player_host:        %s\n", e.templates.Host)
			fmt.Fprintf(out, "selectors:          %d\n", len(e.enf.Rules().Selectors))
			fmt.Fprintln(out, "ok")
			return nil
		},
	}
}

func newClassifyCmd(load func() (*engine, error)) *cobra.Command {
	var exact []string
	cmd := &cobra.Command{
		Use:   "classify URL...",
		Short: "Classify URLs against the rule set",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, u := range args {
				v := e.rules.Evaluate(u, exact...)
				if v.Rule != "" {
					fmt.Fprintf(out, "%s\t%s\t%s\n", v.Class, v.Rule, u)
				} else {
					fmt.Fprintf(out, "%s\t-\t%s\n", v.Class, u)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&exact, "exact", nil, "URLs that count as essential when matched verbatim")
	return cmd
}

func newDestinationCmd(load func() (*engine, error)) *cobra.Command {
	var in playback.Intent
	var kind string
	cmd := &cobra.Command{
		Use:   "destination",
		Short: "Derive the trusted destination for a title",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			in.Kind = playback.Kind(kind)
			dest, err := e.templates.Destination(in, e.rules)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "catalog id of the title")
	cmd.Flags().StringVar(&kind, "kind", string(playback.KindMovie), "movie or series")
	cmd.Flags().IntVar(&in.Season, "season", 1, "season number (series only)")
	cmd.Flags().IntVar(&in.Episode, "episode", 1, "episode number (series only)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func newScriptCmd(load func() (*engine, error)) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "script",
		Short: "Render the enforcement script",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			js, err := e.enf.Script(session)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), js)
			return err
		},
	}
	cmd.Flags().StringVar(&session, "session", "offline", "session id embedded in the script")
	return cmd
}

func newSweepCmd(load func() (*engine, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep [FILE]",
		Short: "Remove ads and suspicious links from an HTML document",
		Long:  "Reads FILE (or stdin when omitted or '-'), writes the cleaned document to stdout and one line per removed element to stderr.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := load()
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			html, removed, err := e.enf.SweepHTML(in)
			if err != nil {
				return err
			}
			for _, rm := range removed {
				fmt.Fprintf(cmd.ErrOrStderr(), "removed <%s> by %s %s\n", rm.Tag, rm.Rule, rm.Href)
			}
			_, err = io.WriteString(cmd.OutOrStdout(), html)
			return err
		},
	}
}
