package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/listing-crawler/internal/app"
	"github.com/JakeFAU/listing-crawler/internal/crawler"
)

// newCrawlCmd creates the 'crawl' subcommand. It is also the child process
// contract of the batch process runner: a page-suffixed URL starts at that
// page, stdout carries one status line per page, and failure exits non-zero.
func newCrawlCmd() *cobra.Command {
	var startPage int
	cmd := &cobra.Command{
		Use:   "crawl <url> <output-dir>",
		Short: "Crawls the result pages of one search URL",
		Args:  cobra.ExactArgs(2),
		RunE: runWithApp(func(cmd *cobra.Command, appInstance *app.App, args []string) error {
			logger := appInstance.Logger()

			base, page, err := crawler.SplitPageURL(args[0])
			if err != nil {
				return err
			}
			if startPage > 0 {
				page = startPage
			}

			c, release, err := appInstance.NewCrawler(cmd.Context(), args[1], cmd.OutOrStdout(), nil)
			if err != nil {
				return err
			}
			defer release()

			res, err := c.Crawl(cmd.Context(), base, page)
			if err != nil {
				return fmt.Errorf("crawl %s: %w", base, err)
			}
			logger.Info("Crawl command finished",
				zap.String("stop", string(res.Stop)),
				zap.Int("last_page", res.LastPage),
				zap.String("output", res.OutputPath),
			)
			return nil
		}),
	}
	cmd.Flags().IntVar(&startPage, "start-page", 0, "page to start from; overrides a page parameter in the URL")
	return cmd
}
