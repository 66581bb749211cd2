package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"arkik/internal"
	"arkik/internal/config"
	"arkik/internal/connectors"
	gmailconnector "arkik/internal/connectors/gmail"
	imapconnector "arkik/internal/connectors/imap"
	"arkik/internal/listener"
	"arkik/internal/pipeline"
	"arkik/internal/refdata"
	"arkik/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "refdata:initial-sync":
		must(cfg.Require("ARKIK_PLANT_ID", cfg.PlantID))
		svc := refdata.NewSyncService(db, cfg)
		counts, err := svc.InitialSync(context.Background())
		must(err)
		fmt.Printf("initial sync complete: recipes=%d prices=%d quotes=%d mappings=%d\n",
			counts.Recipes, counts.Prices, counts.Quotes, counts.MaterialMappings)
	case "refdata:incremental-sync":
		must(cfg.Require("ARKIK_PLANT_ID", cfg.PlantID))
		svc := refdata.NewSyncService(db, cfg)
		counts, err := svc.IncrementalSync(context.Background())
		must(err)
		fmt.Printf("incremental sync complete: recipes=%d prices=%d quotes=%d mappings=%d\n",
			counts.Recipes, counts.Prices, counts.Quotes, counts.MaterialMappings)
	case "mail:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "imap", "gmail|imap")
		label := fs.String("label", "INBOX", "mailbox/label")
		max := fs.Int("max", 50, "max messages")
		_ = fs.Parse(os.Args[2:])
		conn, err := makeConnector(cfg, *provider)
		must(err)
		fetch := connectors.NewFetchService(db, cfg.RawMailDir, conn)
		result, err := fetch.FetchAndStore(*label, *max)
		must(err)
		fmt.Printf("mail fetch done provider=%s fetched=%d stored=%d skipped=%d\n",
			*provider, result.Fetched, result.Stored, result.Skipped)
	case "mail:process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		provider := fs.String("provider", "imap", "gmail|imap")
		messageID := fs.String("messageId", "", "specific message-id")
		batch := fs.Int("batch", 20, "batch size")
		_ = fs.Parse(os.Args[2:])
		processor := pipeline.NewProcessingService(db, cfg)
		if strings.TrimSpace(*messageID) != "" {
			res, err := processor.ProcessByProviderMessageID(context.Background(), *provider, *messageID)
			must(err)
			fmt.Printf("processed email id=%d rows=%d valid=%d warnings=%d errors=%d\n",
				res.EmailID, res.Rows, res.Valid, res.Warnings, res.Errored)
			return
		}
		processedEmails, processedRows, err := processor.ProcessPending(context.Background(), *batch, *provider)
		must(err)
		fmt.Printf("processed pending emails=%d rows=%d\n", processedEmails, processedRows)
	case "mail:listen":
		s := listener.NewService(db, cfg)
		must(s.Run(context.Background()))
	case "validate":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "report file (xlsx/csv/eml)")
		output := fs.String("output", "", "review workbook path")
		_ = fs.Parse(os.Args[2:])
		if *input == "" || *output == "" {
			must(fmt.Errorf("--input and --output are required"))
		}

		inType := pipeline.GuessInputType(*input)
		if inType == "" {
			must(fmt.Errorf("cannot infer input type from %s", *input))
		}
		parsed, err := pipeline.ExtractRowsFromInput(inType, *input)
		must(err)
		fmt.Printf("parsed %d of %d rows (%d structural errors)\n",
			len(parsed.Rows), parsed.TotalRows, len(parsed.Errors))

		processor := pipeline.NewProcessingService(db, cfg)
		result, err := processor.ValidateRows(context.Background(), parsed.Rows)
		must(err)

		valid, warnings, errored := 0, 0, 0
		for _, row := range result.Validated {
			switch row.Status {
			case internal.StatusValid:
				valid++
			case internal.StatusWarning:
				warnings++
			case internal.StatusError:
				errored++
			}
		}
		fmt.Printf("validated rows=%d valid=%d warnings=%d errors=%d cacheHits=%d\n",
			len(result.Validated), valid, warnings, errored, result.Stats.CacheHits)

		must(pipeline.ExportRowsToXLSX(result.Validated, *output))
		fmt.Printf("review workbook written to %s\n", *output)
	case "duplicates":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		emailID := fs.Int("emailId", 0, "internal email id")
		_ = fs.Parse(os.Args[2:])
		if *emailID == 0 {
			must(fmt.Errorf("--emailId is required"))
		}

		rows, err := db.GetValidatedRows(*emailID)
		must(err)
		processor := pipeline.NewProcessingService(db, cfg)
		infos, decisions, err := processor.AnalyzeDuplicates(context.Background(), rows)
		must(err)

		for i, info := range infos {
			fmt.Printf("remision=%s risk=%s strategy=%s notes=%s\n",
				info.RemisionNumber, info.RiskLevel, decisions[i].Strategy, strings.Join(info.Notes, "; "))
		}
		classifier := pipeline.NewClassifier(cfg)
		partition := classifier.ApplyDecisions(rows, infos, nil)
		fmt.Printf("partition: insert=%d skip=%d update=%d (low=%d medium=%d high=%d)\n",
			len(partition.ToInsert), len(partition.ToSkip), len(partition.ToUpdate),
			partition.Summary.LowRisk, partition.Summary.MediumRisk, partition.Summary.HighRisk)
	case "commit":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		emailID := fs.Int("emailId", 0, "internal email id")
		skipAll := fs.Bool("skip-duplicates", false, "skip every colliding remision instead of applying strategies")
		_ = fs.Parse(os.Args[2:])
		if *emailID == 0 {
			must(fmt.Errorf("--emailId is required"))
		}
		must(cfg.Require("ARKIK_PLANT_ID", cfg.PlantID))

		processor := pipeline.NewProcessingService(db, cfg)
		var decisions []internal.DuplicateDecision
		if *skipAll {
			rows, err := db.GetValidatedRows(*emailID)
			must(err)
			infos, _, err := processor.AnalyzeDuplicates(context.Background(), rows)
			must(err)
			for _, info := range infos {
				decisions = append(decisions, internal.DuplicateDecision{
					RemisionNumber: info.RemisionNumber,
					Strategy:       internal.StrategySkip,
				})
			}
		}
		partition, err := processor.CommitEmail(context.Background(), *emailID, decisions)
		must(err)
		fmt.Printf("commit done: inserted=%d updated=%d skipped=%d (materialsOnly=%d merged=%d full=%d)\n",
			len(partition.ToInsert), len(partition.ToUpdate), len(partition.ToSkip),
			partition.Summary.MaterialsOnlyUpdate, partition.Summary.Merged, partition.Summary.FullUpdates)
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		emailID := fs.Int("emailId", 0, "internal email id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if *emailID == 0 || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--emailId and --out are required"))
		}
		rows, err := db.GetValidatedRows(*emailID)
		must(err)
		if len(rows) == 0 {
			must(fmt.Errorf("no staged rows for emailId=%d", *emailID))
		}
		must(pipeline.ExportRowsToXLSX(rows, *out))
		fmt.Printf("exported %d rows to %s\n", len(rows), *out)
	default:
		usage()
		os.Exit(1)
	}
}

func makeConnector(cfg config.Config, provider string) (connectors.MailConnector, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "gmail":
		return gmailconnector.NewConnector(cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func usage() {
	fmt.Println("usage: arkik <command>")
	fmt.Println("commands:")
	fmt.Println("  refdata:initial-sync")
	fmt.Println("  refdata:incremental-sync")
	fmt.Println("  mail:fetch --provider=gmail|imap --label=INBOX --max=50")
	fmt.Println("  mail:process --provider=gmail|imap [--messageId=...] [--batch=20]")
	fmt.Println("  mail:listen")
	fmt.Println("  validate --input=report.xlsx --output=review.xlsx")
	fmt.Println("  duplicates --emailId=1")
	fmt.Println("  commit --emailId=1 [--skip-duplicates]")
	fmt.Println("  export:xlsx --emailId=1 --out=./out/review.xlsx")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
