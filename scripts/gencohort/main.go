// Command gencohort writes a synthetic labeled patient cohort as CSV, for
// exercising the training pipeline with risktrain.
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"

	"oncorisk/internal/patient"
)

func main() {
	var (
		out     = flag.String("out", "cohort.csv", "Output CSV path")
		n       = flag.Int("n", 500, "Number of patients to generate")
		seed    = flag.Int64("seed", 1, "Random seed")
		missing = flag.Float64("missing", 0.1, "Fraction of optional cells left empty")
	)
	flag.Parse()

	fmt.Printf("Generating %d synthetic patients...\n", *n)
	fmt.Printf("  Seed: %d\n", *seed)
	fmt.Printf("  Missing rate: %.0f%%\n", *missing*100)
	fmt.Printf("  Output: %s\n", *out)

	if err := generate(*out, *n, *seed, *missing); err != nil {
		log.Fatalf("Failed to generate cohort: %v", err)
	}
	fmt.Printf("✓ Wrote %s\n", *out)
}

func generate(path string, n int, seed int64, missing float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"age", "sex", "smoking", "drinking", "family_history", "exercise", "height_cm", "weight_kg", "label"}
	if err := w.Write(header); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(seed))
	sexes := []string{string(patient.SexMale), string(patient.SexFemale), string(patient.SexOther)}
	habits := []string{"never", "former", "current"}
	exercises := patient.ExerciseLevels()

	var positives int
	for i := 0; i < n; i++ {
		age := 20 + rng.Intn(61)
		smoking := rng.Intn(3)
		drinking := rng.Intn(3)
		history := rng.Intn(4) == 0
		exercise := rng.Intn(4)
		height := 150 + rng.Float64()*45
		bmi := 19 + rng.Float64()*16
		weight := bmi * (height / 100) * (height / 100)

		// planted risk signal with a little noise
		risk := float64(age-20)/60*0.35 +
			float64(smoking)*0.15 +
			float64(drinking)*0.05 +
			(bmi-19)/16*0.15 -
			float64(exercise)*0.05 +
			rng.NormFloat64()*0.05
		if history {
			risk += 0.25
		}
		label := 0
		if risk > 0.45 {
			label = 1
			positives++
		}

		maybe := func(v string) string {
			if rng.Float64() < missing {
				return ""
			}
			return v
		}
		row := []string{
			strconv.Itoa(age),
			sexes[rng.Intn(len(sexes))],
			maybe(habits[smoking]),
			maybe(habits[drinking]),
			maybe(strconv.FormatBool(history)),
			maybe(string(exercises[exercise])),
			maybe(strconv.FormatFloat(height, 'f', 1, 64)),
			maybe(strconv.FormatFloat(weight, 'f', 1, 64)),
			strconv.Itoa(label),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	fmt.Printf("  Positives: %d/%d (%.0f%%)\n", positives, n, float64(positives)/float64(n)*100)
	return nil
}
