package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"revenue-forecaster/internal/records"
	"revenue-forecaster/internal/storage"
)

func main() {
	var (
		out      = flag.String("out", "artifacts/all_invoices_consolidated.csv", "Consolidated CSV to write")
		dataPath = flag.String("data", "", "Also store the records in the database under this directory")
		months   = flag.Int("months", 36, "Number of months of invoices")
		start    = flag.String("start", "2017-11", "First month (YYYY-MM)")
		base     = flag.Float64("base", 180000, "Monthly revenue in the first month")
		invoices = flag.Int("invoices", 40, "Invoices per month")
		seed     = flag.Uint64("seed", 7, "Random seed")
	)
	flag.Parse()

	first, err := time.Parse("2006-01", *start)
	if err != nil {
		log.Fatalf("Invalid start month: %v", err)
	}

	fmt.Printf("Generating sample invoices...\n")
	fmt.Printf("  Months: %d from %s\n", *months, *start)
	fmt.Printf("  Base revenue: %.2f\n", *base)
	fmt.Printf("  Output: %s\n", *out)

	recs := generateInvoices(first, *months, *invoices, *base, *seed)

	if err := writeCSV(*out, recs); err != nil {
		log.Fatalf("Failed to write CSV: %v", err)
	}

	if *dataPath != "" {
		store, err := storage.New(*dataPath)
		if err != nil {
			log.Fatalf("Failed to open storage: %v", err)
		}
		defer store.Close()

		if err := store.ReplaceRecords(context.Background(), recs); err != nil {
			log.Fatalf("Failed to store records: %v", err)
		}
	}

	fmt.Printf("✓ Generated %d invoices\n", len(recs))
}

// generateInvoices splits a trending, seasonal monthly revenue over random
// invoice dates within each month.
func generateInvoices(first time.Time, months, perMonth int, base float64, seed uint64) []records.RawRecord {
	rng := rand.New(rand.NewPCG(seed, 0))

	trend := 0.01       // 1% monthly growth
	seasonality := 0.15 // yearly swing
	noise := 0.05       // monthly noise
	var recs []records.RawRecord

	for m := 0; m < months; m++ {
		month := first.AddDate(0, m, 0)
		season := 1 + seasonality*math.Sin(2*math.Pi*float64(month.Month()-1)/12)
		total := base * math.Pow(1+trend, float64(m)) * season * (1 + noise*rng.NormFloat64())
		if total < 0 {
			total = 0
		}

		weights := make([]float64, perMonth)
		var sum float64
		for i := range weights {
			weights[i] = 0.2 + rng.Float64()
			sum += weights[i]
		}

		days := month.AddDate(0, 1, 0).Sub(month).Hours() / 24
		for _, w := range weights {
			day := month.AddDate(0, 0, rng.IntN(int(days)))
			price := math.Round(total*w/sum*100) / 100
			recs = append(recs, records.RawRecord{Date: day, Price: price})
		}
	}
	return recs
}

func writeCSV(path string, recs []records.RawRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"date", "price"}); err != nil {
		return err
	}
	for _, r := range recs {
		if err := w.Write([]string{r.Date.Format("2006-01-02"), strconv.FormatFloat(r.Price, 'f', 2, 64)}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
