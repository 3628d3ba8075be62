package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/dustin/go-humanize"

	"github.com/ACF100/ndc-location-mapper/internal"
	"github.com/ACF100/ndc-location-mapper/internal/catalog"
	"github.com/ACF100/ndc-location-mapper/internal/config"
	"github.com/ACF100/ndc-location-mapper/internal/listener"
	"github.com/ACF100/ndc-location-mapper/internal/logger"
	"github.com/ACF100/ndc-location-mapper/internal/pipeline"
	"github.com/ACF100/ndc-location-mapper/internal/registry"
	"github.com/ACF100/ndc-location-mapper/internal/spl"
	"github.com/ACF100/ndc-location-mapper/internal/storage"
	"github.com/ACF100/ndc-location-mapper/internal/util"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	slog.SetDefault(log)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "registry:inspect":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		path := fs.String("path", cfg.RegistryPath, "registry xlsx or csv")
		_ = fs.Parse(os.Args[2:])
		must(cfg.Require("REGISTRY_PATH", *path))
		_, report, err := loadRegistry(cfg, db, *path, log)
		must(err)
		printReport(report)
	case "lookup":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		ndc := fs.String("ndc", "", "NDC in any common spelling")
		out := fs.String("out", "", "optional output xlsx path")
		asJSON := fs.Bool("json", false, "print rows as JSON")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*ndc) == "" {
			must(fmt.Errorf("--ndc is required"))
		}
		engine, proc := buildEngine(cfg, db, log)
		res, err := engine.Lookup(ctx, *ndc)
		_, recErr := proc.RecordLookup(res, nil)
		must(err)
		must(recErr)
		if *asJSON {
			blob, err := json.MarshalIndent(res.Rows, "", "  ")
			must(err)
			fmt.Println(string(blob))
		} else {
			printLookup(res)
		}
		if strings.TrimSpace(*out) != "" && len(res.Rows) > 0 {
			must(pipeline.ExportRowsToXLSX(res.Rows, *out))
			fmt.Printf("exported %d rows to %s\n", len(res.Rows), *out)
		}
	case "lookup:batch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "NDC list (txt, csv or xlsx)")
		out := fs.String("out", "", "output xlsx path")
		concurrency := fs.Int("concurrency", cfg.LookupConcurrency, "parallel lookups")
		_ = fs.Parse(os.Args[2:])
		if *input == "" || *out == "" {
			must(fmt.Errorf("--input and --out are required"))
		}
		ndcs, err := pipeline.ReadNDCList(*input)
		must(err)
		if len(ndcs) == 0 {
			must(fmt.Errorf("no NDC found in %s", *input))
		}
		engine, proc := buildEngine(cfg, db, log)

		start := time.Now()
		bar := pb.Full.New(len(ndcs))
		bar.SetWriter(os.Stderr)
		bar.Set("prefix", "lookups ")
		bar.Set(pb.CleanOnFinish, true)
		bar.Start()
		results, err := engine.LookupBatch(ctx, ndcs, *concurrency, func(done, total int, res pipeline.LookupResult) {
			bar.SetCurrent(int64(done))
		})
		bar.Finish()
		must(err)

		counts := map[internal.LookupStatus]int{}
		for _, res := range results {
			_, err := proc.RecordLookup(res, nil)
			must(err)
			counts[res.Status]++
		}
		rows := pipeline.Rows(results)
		must(pipeline.ExportRowsToXLSX(rows, *out))
		fmt.Printf("batch done ndcs=%s ok=%d no_product=%d invalid=%d errors=%d rows=%s in %s\n",
			humanize.Comma(int64(len(ndcs))), counts[internal.LookupOK], counts[internal.LookupNoProduct],
			counts[internal.LookupInvalidNDC], counts[internal.LookupInternalError],
			humanize.Comma(int64(len(rows))), time.Since(start).Round(time.Millisecond))
		fmt.Printf("output=%s\n", *out)
	case "spl:debug":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		setID := fs.String("setid", "", "label document set id to fetch")
		file := fs.String("file", "", "local label document")
		_ = fs.Parse(os.Args[2:])
		if (*setID == "") == (*file == "") {
			must(fmt.Errorf("exactly one of --setid and --file is required"))
		}
		var doc []byte
		if *file != "" {
			doc, err = os.ReadFile(*file)
		} else {
			doc, err = catalog.NewClient(cfg).FetchSPL(ctx, *setID)
		}
		must(err)
		idx := registry.NewIndex()
		if cfg.RegistryPath != "" {
			idx, _, _ = loadRegistry(cfg, db, cfg.RegistryPath, log)
		}
		fmt.Printf("document size: %s\n", humanize.Bytes(uint64(len(doc))))
		must(spl.Inspect(doc, idx).Write(os.Stdout))
	case "lookups:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "number of lookups")
		_ = fs.Parse(os.Args[2:])
		lookups, err := db.ListLookups(*limit)
		must(err)
		for _, l := range lookups {
			fmt.Printf("%d\t%s\t%s\t%s\testablishments=%d\t%dms\t%s\n",
				l.ID, l.CreatedAt, l.NDC, l.Status, l.Establishments, l.DurationMs, util.Deref(l.ProductName))
		}
	case "lookups:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		lookupID := fs.Int("id", 0, "lookup id")
		requestID := fs.Int("requestId", 0, "inbox request id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if (*lookupID == 0 && *requestID == 0) || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--id or --requestId, and --out are required"))
		}
		var rows []internal.Row
		if *lookupID != 0 {
			rows, err = db.GetLookupRows(*lookupID)
		} else {
			rows, err = db.GetRequestRows(*requestID)
		}
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no rows to export"))
		}
		must(pipeline.ExportRowsToXLSX(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	case "requests:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		batch := fs.Int("batch", cfg.ListenerBatch, "max requests")
		_ = fs.Parse(os.Args[2:])
		_, proc := buildEngine(cfg, db, log)
		requests, lookups, err := proc.ProcessPending(ctx, *batch)
		must(err)
		fmt.Printf("processed pending requests=%d lookups=%d\n", requests, lookups)
	case "inbox:listen":
		_, proc := buildEngine(cfg, db, log)
		must(listener.NewService(db, proc, cfg, log).Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

// loadRegistry always returns a usable index. A registry that cannot be read
// is logged and recorded once, and the index is left empty.
func loadRegistry(cfg config.Config, db *storage.DB, path string, log *slog.Logger) (*registry.Index, registry.LoadReport, error) {
	idx, report, err := registry.Load(path)
	idx.NameMinLength = cfg.NameMatchMinLen
	for _, w := range report.Warnings {
		log.Warn("registry load", "source", path, "warning", w)
	}
	if err := db.InsertRegistryLoad(report); err != nil {
		log.Warn("registry load not recorded", "error", err)
	}
	_ = db.SetMetadata("registry_path", path)
	return idx, report, err
}

// buildEngine loads the registry named by the config. Without a readable one
// the engine still resolves products but finds no establishments.
func buildEngine(cfg config.Config, db *storage.DB, log *slog.Logger) (*pipeline.Engine, *pipeline.ProcessingService) {
	var reg spl.Registry = registry.NewIndex()
	if strings.TrimSpace(cfg.RegistryPath) == "" {
		log.Warn("REGISTRY_PATH is not set, establishments cannot be resolved")
	} else {
		idx, _, _ := loadRegistry(cfg, db, cfg.RegistryPath, log)
		reg = idx
	}
	engine := pipeline.NewEngine(cfg, catalog.NewClient(cfg), reg, log)
	return engine, pipeline.NewProcessingService(db, engine, cfg, log)
}

func printReport(r registry.LoadReport) {
	fmt.Printf("source: %s (%s", r.Source, r.Format)
	if r.Sheet != "" {
		fmt.Printf(", sheet %q", r.Sheet)
	}
	fmt.Println(")")
	fmt.Printf("rows: %s (skipped %s)\n", humanize.Comma(int64(r.Rows)), humanize.Comma(int64(r.Skipped)))
	fmt.Printf("FEI records: %s, keys: %s\n", humanize.Comma(int64(r.FEIRecords)), humanize.Comma(int64(r.FEIKeys)))
	fmt.Printf("DUNS records: %s, keys: %s\n", humanize.Comma(int64(r.DUNSRecords)), humanize.Comma(int64(r.DUNSKeys)))
	fmt.Printf("collisions: %s\n", humanize.Comma(int64(r.Collisions)))
	for _, w := range r.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
}

func printLookup(res pipeline.LookupResult) {
	fmt.Printf("ndc=%s status=%s trace=%s\n", res.NDC, res.Status, res.TraceID)
	if res.Product != nil {
		fmt.Printf("product: %s\nlabeler: %s\nspl: %s (%s)\n",
			res.Product.ProductName, res.Product.LabelerName, util.Deref(res.Product.SPLID), res.Product.Source)
	}
	for i, row := range res.Rows {
		if row.Status == internal.RowStatusNoEstablish {
			fmt.Println("no establishments found")
			continue
		}
		fmt.Printf("%d. %s [%s] %s, %s\n   operations: %s\n   match: %s at %s (confidence %.2f)\n",
			i+1, util.Deref(row.EstablishmentName), util.FirstNonEmpty(util.Deref(row.FEINumber), util.Deref(row.DUNSNumber)),
			util.Deref(row.City), util.Deref(row.Country), util.Deref(row.Operations),
			util.Deref(row.MatchType), util.Deref(row.XMLLocation), row.Confidence)
	}
	if res.Err != nil {
		fmt.Printf("note: %v\n", res.Err)
	}
}

func usage() {
	fmt.Println("usage: ndcmap <command>")
	fmt.Println("commands:")
	fmt.Println("  registry:inspect [--path=registry.xlsx]")
	fmt.Println("  lookup --ndc=50242-061-01 [--out=./out/result.xlsx] [--json]")
	fmt.Println("  lookup:batch --input=ndcs.txt --out=./out/batch.xlsx [--concurrency=4]")
	fmt.Println("  spl:debug --setid=... | --file=label.xml")
	fmt.Println("  lookups:list [--limit=20]")
	fmt.Println("  lookups:export --id=1 | --requestId=1 --out=./out/result.xlsx")
	fmt.Println("  requests:process [--batch=20]")
	fmt.Println("  inbox:listen")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
