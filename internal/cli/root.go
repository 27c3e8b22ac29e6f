// Package cli implements the eggclient command which sends GraphQL operations from the
// command line and merges cache snapshots.
package cli

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/andrewwphillips/eggclient"
)

// EnvPrefix is the prefix of environment variables that set flags, eg EGGCLIENT_HTTP
const EnvPrefix = "EGGCLIENT"

// Execute runs the command with the command line arguments and exits on error
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd creates the eggclient command and its subcommands. Settings come from (in
// order of precedence) flags, EGGCLIENT_* environment variables, then the config file.
func NewRootCmd() *cobra.Command {
	conf := viper.New()
	root := &cobra.Command{
		Use:   "eggclient",
		Short: "eggclient: GraphQL client",
		Long: `
Sends GraphQL queries, mutations and subscriptions to a server and prints the results
as JSON. Subscriptions use a websocket if --ws is given. Cache snapshots (as embedded
in server rendered pages) can be loaded with --state or merged with the merge command.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("http", "http://localhost:4000/graphql", "URL of the GraphQL HTTP endpoint")
	flags.String("ws", "", "URL of the GraphQL websocket endpoint (subscriptions use HTTP if not set)")
	flags.String("token", "", "Token sent in the x-jwt header (instead of any token in the state)")
	flags.String("state", "", "File holding a cache snapshot, or a page with one in its props, to load first")
	flags.Duration("timeout", 30*time.Second, "Time limit for queries and mutations")
	flags.Bool("verbose", false, "Log in human readable form at debug level")
	flags.String("config", "", "Configuration file. Takes precedence over default values, but is "+
		"overridden by values set with environment variables and flags.")
	_ = conf.BindPFlags(flags)
	conf.SetEnvPrefix(EnvPrefix)
	conf.AutomaticEnv()

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg := conf.GetString("config")
		if cfg == "" {
			return nil
		}
		conf.SetConfigFile(cfg)
		return errors.Wrap(conf.ReadInConfig(), "reading config")
	}

	root.AddCommand(
		newOperationCmd(conf, eggclient.Query),
		newOperationCmd(conf, eggclient.Mutation),
		newSubscribeCmd(conf),
		newMergeCmd(),
	)
	return root
}

// newLogger returns a development logger if verbose is set, else a production one
func newLogger(conf *viper.Viper) (*zap.Logger, error) {
	if conf.GetBool("verbose") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newClient creates the client for one command, hydrated from the --state file if given
func newClient(conf *viper.Viper) (*eggclient.Client, error) {
	log, err := newLogger(conf)
	if err != nil {
		return nil, errors.Wrap(err, "creating logger")
	}
	opts := []eggclient.Option{
		eggclient.HTTPEndpoint(conf.GetString("http")),
		eggclient.Logger(log),
	}
	if ws := conf.GetString("ws"); ws != "" {
		opts = append(opts, eggclient.WSEndpoint(ws))
	}

	var state eggclient.SerializedState
	if path := conf.GetString("state"); path != "" {
		if state, err = loadSnapshot(path); err != nil {
			return nil, err
		}
		log.Debug("loaded state", zap.String("file", path), zap.Int("records", len(state)))
	}

	// A command line process is interactive (the websocket can be used) so is session scoped
	session := eggclient.NewSession(eggclient.SessionScoped, opts...)
	c, err := session.Client(state, conf.GetString("token"))
	if err != nil {
		return nil, errors.Wrap(err, "creating client")
	}
	return c, nil
}
