package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/andrewwphillips/eggclient"
	"github.com/andrewwphillips/eggclient/internal/jsonutil"
)

var policies = map[string]eggclient.FetchPolicy{
	eggclient.CacheFirst.String():  eggclient.CacheFirst,
	eggclient.NetworkOnly.String(): eggclient.NetworkOnly,
	eggclient.CacheOnly.String():   eggclient.CacheOnly,
}

// addOperationFlags adds the flags used by every command that sends an operation
func addOperationFlags(flags *pflag.FlagSet) {
	flags.StringP("file", "f", "", "File containing the GraphQL document (instead of an argument)")
	flags.String("vars", "", "Variables as a JSON object")
	flags.String("operation", "", "Name of the operation to run if the document has more than one")
}

// newOperationCmd creates the query or mutate command
func newOperationCmd(conf *viper.Viper, kind eggclient.Kind) *cobra.Command {
	name := kind.String()
	if kind == eggclient.Mutation {
		name = "mutate"
	}
	cmd := &cobra.Command{
		Use:   name + " [document]",
		Short: "Send a " + kind.String() + " and print the result",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := readOperation(cmd, args, kind)
			if err != nil {
				return err
			}
			c, err := newClient(conf)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), conf.GetDuration("timeout"))
			defer cancel()

			p := eggclient.NetworkOnly
			if kind == eggclient.Query {
				policy, _ := cmd.Flags().GetString("policy")
				var ok bool
				if p, ok = policies[policy]; !ok {
					return errors.Errorf("unknown fetch policy %q", policy)
				}
			}

			r, err := c.Fetch(ctx, op, p)
			if r == nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), r)
		},
	}
	addOperationFlags(cmd.Flags())
	if kind == eggclient.Query {
		cmd.Flags().String("policy", eggclient.CacheFirst.String(), "Fetch policy: cache-first, network-only or cache-only")
	}
	return cmd
}

func newSubscribeCmd(conf *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subscribe [document]",
		Short: "Start a subscription and print each result until it ends or is interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := readOperation(cmd, args, eggclient.Subscription)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("count")
			c, err := newClient(conf)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			var failed error
			count := 0
			for r := range c.Execute(ctx, op) {
				if err := printResult(cmd.OutOrStdout(), r); err != nil {
					failed = err
				}
				count++
				if limit > 0 && count >= limit {
					stop()
				}
			}
			return failed
		},
	}
	addOperationFlags(cmd.Flags())
	cmd.Flags().Int("count", 0, "Stop after this many results (0 for no limit)")
	return cmd
}

// readOperation gets the document from the --file flag or the argument and parses it
func readOperation(cmd *cobra.Command, args []string, kind eggclient.Kind) (*eggclient.Operation, error) {
	flags := cmd.Flags()
	file, _ := flags.GetString("file")
	vars, _ := flags.GetString("vars")
	name, _ := flags.GetString("operation")

	var document string
	switch {
	case file != "" && len(args) > 0:
		return nil, errors.New("give the document as an argument or with --file, not both")
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrap(err, "reading document")
		}
		document = string(b)
	case len(args) > 0:
		document = args[0]
	default:
		return nil, errors.New("no GraphQL document given")
	}

	var variables map[string]interface{}
	if strings.TrimSpace(vars) != "" {
		if err := jsonutil.Decode([]byte(vars), &variables); err != nil {
			return nil, errors.Wrap(err, "decoding --vars")
		}
	}

	op, err := eggclient.NewOperation(document, variables, name)
	if err != nil {
		return nil, err
	}
	if op.Kind != kind {
		return nil, errors.Errorf("expected a %v but the document is a %v", kind, op.Kind)
	}
	return op, nil
}

// printResult writes the result as indented JSON then returns its failures (if any)
func printResult(w io.Writer, r *eggclient.Result) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding result")
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return err
	}
	return r.Err()
}
