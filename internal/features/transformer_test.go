package features

import (
	"errors"
	"math"
	"testing"

	"oncorisk/internal/patient"
)

// fitRecords builds n complete records with enough variety to fit every
// feature and both sex categories.
func fitRecords(n int) []patient.Record {
	records := make([]patient.Record, n)
	for i := range records {
		sex := patient.SexMale
		if i%2 == 1 {
			sex = patient.SexFemale
		}
		records[i] = patient.Record{
			Age:           patient.IntPtr(30 + i*3),
			Sex:           sex,
			Smoking:       patient.IntPtr(i % 3),
			Drinking:      patient.IntPtr((i + 1) % 3),
			FamilyHistory: patient.BoolPtr(i%2 == 0),
			Exercise:      patient.ExercisePtr(patient.ExerciseLevels()[i%4]),
			HeightCm:      patient.FloatPtr(160 + float64(i)),
			WeightKg:      patient.FloatPtr(60 + float64(i)*2),
		}
	}
	return records
}

func TestFitRequiresMinimumRecords(t *testing.T) {
	_, err := Fit(fitRecords(MinFitRecords - 1))
	if !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("Fit() error = %v, want ErrInsufficientData", err)
	}

	if _, err := Fit(fitRecords(MinFitRecords)); err != nil {
		t.Fatalf("Fit() at the minimum failed: %v", err)
	}
}

func TestFitRejectsMissingRequiredFields(t *testing.T) {
	records := fitRecords(MinFitRecords)
	records[3].Age = nil
	if _, err := Fit(records); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Fit() with missing age error = %v, want ErrSchemaMismatch", err)
	}

	records = fitRecords(MinFitRecords)
	records[7].Sex = ""
	if _, err := Fit(records); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Fit() with missing sex error = %v, want ErrSchemaMismatch", err)
	}
}

func TestFitRejectsUniversallyAbsentField(t *testing.T) {
	records := fitRecords(MinFitRecords)
	for i := range records {
		records[i].HeightCm = nil // bmi becomes underivable everywhere
	}
	if _, err := Fit(records); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Fit() error = %v, want ErrInsufficientData", err)
	}
}

func TestTransformVectorShape(t *testing.T) {
	records := fitRecords(20)
	state, err := Fit(records)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := state.VectorLen(), len(numericNames)+len(state.SexVocab)+1; got != want {
		t.Errorf("VectorLen() = %d, want %d", got, want)
	}
	if got, want := len(state.FeatureNames()), state.VectorLen(); got != want {
		t.Errorf("len(FeatureNames()) = %d, want %d", got, want)
	}

	for i, rec := range records {
		vec, err := Transform(rec, state)
		if err != nil {
			t.Fatalf("Transform(record %d): %v", i, err)
		}
		if len(vec) != state.VectorLen() {
			t.Fatalf("record %d: vector length %d, want %d", i, len(vec), state.VectorLen())
		}
	}
}

func TestTransformIsDeterministic(t *testing.T) {
	records := fitRecords(15)
	state, err := Fit(records)
	if err != nil {
		t.Fatal(err)
	}

	rec := records[4]
	first, err := Transform(rec, state)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Transform(rec, state)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		// bit-identical, not approximately equal
		if first[i] != second[i] {
			t.Fatalf("position %d differs between identical calls: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestTransformImputesWithFittedMean(t *testing.T) {
	records := fitRecords(20)
	state, err := Fit(records)
	if err != nil {
		t.Fatal(err)
	}

	// A missing optional field is imputed with the mean, which scales to zero.
	rec := patient.Record{Age: patient.IntPtr(50), Sex: patient.SexMale}
	vec, err := Transform(rec, state)
	if err != nil {
		t.Fatal(err)
	}
	for fi, name := range numericNames {
		if name == "age" {
			continue
		}
		if math.Abs(vec[fi]) > 1e-12 {
			t.Errorf("imputed feature %s scaled to %v, want 0", name, vec[fi])
		}
	}
}

func TestTransformMissingRequiredField(t *testing.T) {
	state, err := Fit(fitRecords(12))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Transform(patient.Record{Sex: patient.SexMale}, state); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Transform() without age error = %v, want ErrSchemaMismatch", err)
	}
	if _, err := Transform(patient.Record{Age: patient.IntPtr(40)}, state); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Transform() without sex error = %v, want ErrSchemaMismatch", err)
	}
	if _, err := Transform(fitRecords(1)[0], nil); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("Transform() without state error = %v, want ErrSchemaMismatch", err)
	}
}

func TestTransformUnknownCategoryUsesReservedSlot(t *testing.T) {
	// Fit on male/female only, then transform an unseen category.
	state, err := Fit(fitRecords(12))
	if err != nil {
		t.Fatal(err)
	}
	for _, sex := range state.SexVocab {
		if sex == patient.SexOther {
			t.Skip("fitted vocabulary unexpectedly contains the test category")
		}
	}

	rec := patient.Record{Age: patient.IntPtr(40), Sex: patient.SexOther}
	vec, err := Transform(rec, state)
	if err != nil {
		t.Fatal(err)
	}

	oneHot := vec[len(numericNames):]
	for i, v := range oneHot[:len(oneHot)-1] {
		if v != 0 {
			t.Errorf("known-category slot %d set for unknown category", i)
		}
	}
	if oneHot[len(oneHot)-1] != 1 {
		t.Error("reserved unknown slot not set")
	}
}

func TestFitVocabularyIsSorted(t *testing.T) {
	records := fitRecords(12)
	records[0].Sex = patient.SexOther
	state, err := Fit(records)
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(state.SexVocab); i++ {
		if state.SexVocab[i-1] >= state.SexVocab[i] {
			t.Fatalf("vocabulary not sorted: %v", state.SexVocab)
		}
	}
}

func TestFitStatConstantFeature(t *testing.T) {
	stat := fitStat([]float64{5, 5, 5, 5})
	if stat.Mean != 5 {
		t.Errorf("Mean = %v, want 5", stat.Mean)
	}
	if stat.Std != 1 {
		t.Errorf("Std = %v, want unit fallback 1", stat.Std)
	}
}
