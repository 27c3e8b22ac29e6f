package cli

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/andrewwphillips/eggclient"
	"github.com/andrewwphillips/eggclient/internal/cache"
	"github.com/andrewwphillips/eggclient/internal/jsonutil"
)

func newMergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge existing incoming",
		Short: "Print the cache snapshot that results from hydrating existing with incoming",
		Long: `
Each file holds a cache snapshot or a page with the snapshot in its props. Lists that
are in both are merged as they are when a client hydrates: the incoming list followed
by any elements of the existing list that are not also in the incoming list.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			existing, err := loadSnapshot(args[0])
			if err != nil {
				return err
			}
			incoming, err := loadSnapshot(args[1])
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(cache.Merge(existing, incoming), "", "  ")
			if err != nil {
				return errors.Wrap(err, "encoding snapshot")
			}
			_, err = cmd.OutOrStdout().Write(append(b, '\n'))
			return err
		},
	}
}

// loadSnapshot reads a snapshot from a JSON file, which may be a page containing the snapshot
func loadSnapshot(path string) (eggclient.Snapshot, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading snapshot")
	}
	var m map[string]interface{}
	if err := jsonutil.Decode(b, &m); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}

	if _, isPage := m["props"]; isPage {
		state, ok := eggclient.StateFrom(m)
		if !ok {
			return nil, errors.Errorf("%s: page has no %s in its props", path, eggclient.StatePropName)
		}
		return state, nil
	}
	state, ok := cache.FromValue(m)
	if !ok {
		return nil, errors.Errorf("%s: not a cache snapshot", path)
	}
	return state, nil
}
