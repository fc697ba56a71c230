package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pilyon3/netdisco/internal/clireader"
	"github.com/pilyon3/netdisco/internal/config"
	"github.com/pilyon3/netdisco/internal/discover"
	"github.com/pilyon3/netdisco/internal/domain"
	"github.com/pilyon3/netdisco/internal/jobqueue"
	"github.com/pilyon3/netdisco/internal/netscan"
	"github.com/pilyon3/netdisco/internal/repository/sqlite"
	"github.com/pilyon3/netdisco/internal/snapshot"
	"github.com/pilyon3/netdisco/internal/snmpreader"
	"github.com/pilyon3/netdisco/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "config file path (default: search)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	action := flag.String("action", "", "queue one job: discover, arpnip, macsuck, expire, nbtstat")
	target := flag.String("target", "", "device IP for -action")
	sweep := flag.Bool("sweep", false, "ping-sweep configured seed ranges before draining")
	daemon := flag.Bool("daemon", false, "keep polling the queue instead of exiting when drained")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting netdisco...")

	var cfg *config.Config
	var source string
	var err error
	if *configPath != "" {
		cfg, source, err = config.LoadFromPath(*configPath)
	} else {
		cfg, source, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded from %s", source)

	database := cfg.Database.Path
	if *dbPath != "" {
		database = *dbPath
	}
	if database == "" {
		database = "./netdisco.db"
	}

	repo, err := sqlite.New(database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer repo.Close()
	log.Printf("Database opened: %s", database)

	queue := jobqueue.NewMemoryQueue()

	readers := []snapshot.Reader{
		snmpreader.New(cfg),
		clireader.New(cfg),
	}
	discoverer := discover.NewDiscoverer(repo, queue, cfg, readers...)

	registry := worker.NewRegistry(cfg, repo)
	if err := discoverer.Register(registry); err != nil {
		log.Fatalf("Failed to register workers: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *action != "" {
		if err := submitAction(ctx, queue, *action, *target); err != nil {
			log.Fatalf("Failed to queue job: %v", err)
		}
	}

	if *sweep {
		if err := netscan.New(cfg, queue).Run(ctx); err != nil {
			log.Fatalf("Seed sweep failed: %v", err)
		}
	}

	if err := drain(ctx, queue, registry, discoverer.ReleaseJob, *daemon); err != nil && ctx.Err() == nil {
		log.Fatalf("Queue drain failed: %v", err)
	}
	log.Println("netdisco done")
}

func submitAction(ctx context.Context, queue jobqueue.Queue, action, target string) error {
	act := domain.Action(action)
	if !domain.ValidAction(act) {
		return fmt.Errorf("unknown action %q", action)
	}
	if target == "" && act != domain.ActionExpire {
		return fmt.Errorf("action %s needs -target", action)
	}

	job := domain.NewJob(act, target)
	queued, err := queue.Submit(ctx, job)
	if err != nil {
		return err
	}
	if !queued {
		log.Printf("Job %s %s suppressed as duplicate", action, target)
	}
	return nil
}

// drain runs queued jobs until the queue is empty, or forever in
// daemon mode. New jobs queued by a running job (discovered neighbors)
// are picked up in the same pass. release frees per-job resources once
// a job's outcome is recorded, whatever that outcome was.
func drain(ctx context.Context, queue jobqueue.Queue, registry *worker.Registry, release func(jobID string), daemon bool) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		job, err := queue.Next(ctx)
		if err != nil {
			return err
		}
		if job == nil {
			if !daemon {
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		st := registry.RunJob(ctx, job)
		log.Printf("Job %s %s %s: %s [%s]", job.ID, job.Action, job.Target, st.Code, st.Message)
		err = queue.Complete(ctx, job.ID, jobStatus(st), st.Message)
		release(job.ID)
		if err != nil {
			return err
		}
	}
}

func jobStatus(st worker.Status) domain.JobStatus {
	switch st.Code {
	case worker.CodeDeferred:
		return domain.JobDeferred
	case worker.CodeErrored:
		return domain.JobErrored
	default:
		return domain.JobDone
	}
}
