package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rl1809/library-circulation/internal/adapter/storage"
	"github.com/rl1809/library-circulation/internal/core/domain"
	"github.com/rl1809/library-circulation/internal/core/service"
)

type options struct {
	driver   string
	dsn      string
	copies   int
	requests int
}

type results struct {
	success   int32
	conflicts int32
	failed    int32
	available int
	elapsed   time.Duration
}

func (r results) passed(o options) bool {
	return int(r.success) == o.copies &&
		int(r.conflicts) == o.requests-o.copies &&
		r.failed == 0 &&
		r.available == 0
}

func main() {
	var o options
	cmd := &cobra.Command{
		Use:           "stress_test",
		Short:         "Issue one book concurrently and check that no copy is lent twice",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := run(cmd.Context(), o)
			if err != nil {
				return err
			}
			report(o, res)
			if !res.passed(o) {
				return errors.New("stress test failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&o.driver, "driver", storage.DriverSQLite, "database driver")
	cmd.Flags().StringVar(&o.dsn, "dsn", "", "database DSN (default: a temporary SQLite file)")
	cmd.Flags().IntVar(&o.copies, "copies", 20, "copies of the contested book")
	cmd.Flags().IntVar(&o.requests, "requests", 50, "concurrent issue requests")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, o options) (results, error) {
	if o.dsn == "" {
		dir, err := os.MkdirTemp("", "library-stress")
		if err != nil {
			return results{}, err
		}
		defer os.RemoveAll(dir)
		o.dsn = fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", filepath.Join(dir, "stress.db"))
	}

	log := zap.NewNop()
	store, err := storage.OpenSQLStore(ctx, o.driver, o.dsn, storage.PoolConfig{MaxOpenConns: 50}, log)
	if err != nil {
		return results{}, err
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return results{}, err
	}

	// Seed one contested book and one borrower per request
	book, err := service.NewCatalogService(store, log).AddBook(ctx, service.NewBook{Title: "Stress Test Edition", CopiesTotal: o.copies})
	if err != nil {
		return results{}, err
	}
	memberService := service.NewMemberService(store, log)
	memberIDs := make([]int64, o.requests)
	for i := range memberIDs {
		m, err := memberService.Register(ctx, domain.Member{FullName: fmt.Sprintf("Borrower %d", i)})
		if err != nil {
			return results{}, err
		}
		memberIDs[i] = m.ID
	}

	circulation := service.NewCirculationService(store, log)

	var successCount, conflictCount, failCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for _, memberID := range memberIDs {
		wg.Add(1)
		go func(memberID int64) {
			defer wg.Done()

			_, err := circulation.Issue(ctx, domain.IssueRequest{MemberID: memberID, BookID: book.ID})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrNoCopiesAvailable):
				conflictCount.Add(1)
			default:
				failCount.Add(1)
			}
		}(memberID)
	}

	wg.Wait()
	elapsed := time.Since(start)

	final, err := store.GetBook(ctx, book.ID)
	if err != nil {
		return results{}, err
	}

	return results{
		success:   successCount.Load(),
		conflicts: conflictCount.Load(),
		failed:    failCount.Load(),
		available: final.CopiesAvailable,
		elapsed:   elapsed,
	}, nil
}

func report(o options, r results) {
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:           %s\n", o.driver)
	fmt.Printf("Copies:           %d\n", o.copies)
	fmt.Printf("Total Requests:   %d\n", o.requests)
	fmt.Printf("Issued:           %d\n", r.success)
	fmt.Printf("No Copies Left:   %d\n", r.conflicts)
	fmt.Printf("Errors:           %d\n", r.failed)
	fmt.Printf("Duration:         %v\n", r.elapsed)
	fmt.Println("==========================================")

	if int(r.success) == o.copies && int(r.conflicts) == o.requests-o.copies {
		fmt.Printf("PASS: Exactly %d issues succeeded, %d were refused\n", o.copies, o.requests-o.copies)
	} else {
		fmt.Printf("FAIL: Expected %d issued/%d refused, got %d/%d\n",
			o.copies, o.requests-o.copies, r.success, r.conflicts)
	}

	fmt.Printf("Final Availability: %d\n", r.available)
	if r.available == 0 {
		fmt.Println("PASS: Copies depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected 0 available, got %d\n", r.available)
	}
}
