package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yungbote/nftbridge-backend/internal/app"
	"github.com/yungbote/nftbridge-backend/internal/types"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	v = strings.TrimSpace(v)
	if v != "" {
		*l = append(*l, v)
	}
	return nil
}

// metaloader walks the item table and queues a best-effort metadata refresh
// for every item. Notifications are suppressed so a bulk run does not flood
// the outbound topics.
func main() {
	var items idList
	var force bool
	var dryRun bool
	var limit int
	var pageSize int
	flag.Var(&items, "item", "item id to refresh (repeatable; default walks all items)")
	flag.BoolVar(&force, "force", false, "re-download entries already in a terminal state")
	flag.BoolVar(&dryRun, "dry-run", false, "print planned downloads without enqueueing")
	flag.IntVar(&limit, "limit", 0, "limit number of items processed")
	flag.IntVar(&pageSize, "page-size", 500, "items fetched per page")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	if !dryRun {
		go func() {
			application.Services.Downloads.Run(ctx)
			close(done)
		}()
	}

	enqueued := 0
	afterID := ""
	for {
		page, err := application.Repos.Item.List(ctx, nil, afterID, pageSize)
		if err != nil {
			fmt.Printf("list items: %v\n", err)
			os.Exit(1)
		}
		if len(page) == 0 {
			break
		}
		for _, item := range page {
			afterID = item.ID
			if len(items) > 0 && !contains(items, item.ID) {
				continue
			}
			if dryRun {
				fmt.Printf("would schedule %s\n", item.ID)
				enqueued++
			} else {
				task := types.DownloadTask{
					ID:       item.ID,
					Priority: types.PriorityBestEffort,
					Force:    force,
					Suppress: true,
				}
				if err := application.Services.Downloads.Schedule(ctx, task); err != nil {
					fmt.Printf("schedule %s: %v\n", item.ID, err)
					continue
				}
				enqueued++
			}
			if limit > 0 && enqueued >= limit {
				break
			}
		}
		if limit > 0 && enqueued >= limit {
			break
		}
	}

	fmt.Printf("queued %d metadata downloads\n", enqueued)
	if dryRun {
		return
	}

	for application.Services.Downloads.QueueDepth() > 0 {
		time.Sleep(time.Second)
	}
	cancel()
	<-done
}

func contains(list []string, v string) bool {
	for _, entry := range list {
		if entry == v {
			return true
		}
	}
	return false
}
