// Package searchcmder provides the search command for one-off hybrid search.
package searchcmder

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mnemohq/mnemo/pkg/logger"
	"github.com/mnemohq/mnemo/pkg/message"
)

type searchCommander struct {
	query     string
	channel   string
	limit     int
	apiTarget string

	debug  bool
	logger *zap.Logger
}

const searchLongDesc string = `Search channel history via the Mnemo API.

Runs a hybrid keyword + semantic + recency search over stored messages,
returning the highest-scoring messages. Requires a running Mnemo API server.

Example:
  mnemo search "deploy rollback procedure"
  mnemo search "incident retro" --channel C0123456 --top 10
  mnemo search "kafka lag" --api-target http://localhost:8090`

const searchShortDesc string = "Search channel history"

// searchResponse mirrors the API's search payload.
type searchResponse struct {
	Query   string                  `json:"query"`
	Count   int                     `json:"count"`
	Results []message.ScoredMessage `json:"results"`
}

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.channel, "channel", "c", "", "Restrict the search to one channel id")
	cmd.Flags().IntVarP(&cmder.limit, "top", "t", 10, "Number of results to return")
	cmd.Flags().StringVar(&cmder.apiTarget, "api-target", "http://localhost:8090", "Mnemo API server URL")

	return cmd
}

func (c *searchCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	endpoint, err := url.Parse(c.apiTarget + "/search")
	if err != nil {
		return fmt.Errorf("invalid api target: %w", err)
	}

	params := url.Values{}
	params.Set("q", c.query)
	params.Set("limit", strconv.Itoa(c.limit))
	if c.channel != "" {
		params.Set("channel", c.channel)
	}
	endpoint.RawQuery = params.Encode()

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(endpoint.String())
	if err != nil {
		return fmt.Errorf("querying api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search failed: %s: %s", resp.Status, body)
	}

	var result searchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	if result.Count == 0 {
		fmt.Printf("No results for %q.\n", c.query)
		return nil
	}

	fmt.Printf("Top %d results for %q:\n\n", result.Count, c.query)
	for i, sm := range result.Results {
		fmt.Printf("%2d. [%.3f] #%s @%s\n", i+1, sm.Scores.Combined, sm.ChannelID, sm.AuthorID)
		fmt.Printf("    %s\n", sm.Text)
		if c.debug {
			fmt.Printf("    keyword=%.3f semantic=%.3f temporal=%.3f\n",
				sm.Scores.Keyword, sm.Scores.Semantic, sm.Scores.Temporal)
		}
	}

	return nil
}
