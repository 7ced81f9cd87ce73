package forecast

import (
	"testing"
	"time"

	"lotwatch/internal/domain"
)

func obs(weekday time.Weekday, slot string, open int, at time.Time) domain.SlotObservation {
	return domain.SlotObservation{
		LotID:      "way/1",
		Weekday:    weekday,
		Slot:       slot,
		OpenCount:  open,
		ObservedAt: at,
	}
}

func TestEstimateConstantHistory(t *testing.T) {
	base := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	var history []domain.SlotObservation
	for i := 0; i < 5; i++ {
		history = append(history, obs(time.Monday, "09:00", 12, base.AddDate(0, 0, 7*i)))
	}

	res := Estimate(history, time.Monday, "09:00")
	if res.Expected == nil || res.P25 == nil || res.P75 == nil {
		t.Fatal("expected all fields populated")
	}
	if *res.Expected != 12 {
		t.Errorf("expected = %d, want 12", *res.Expected)
	}
	if *res.P25 != 12 || *res.P75 != 12 {
		t.Errorf("quartiles = %f/%f, want 12/12", *res.P25, *res.P75)
	}
}

func TestEstimateBlendsLatestAndMedian(t *testing.T) {
	base := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	// Open counts 10, 20, 30 with 30 the most recent; median 20.
	history := []domain.SlotObservation{
		obs(time.Monday, "09:00", 10, base),
		obs(time.Monday, "09:00", 20, base.AddDate(0, 0, 7)),
		obs(time.Monday, "09:00", 30, base.AddDate(0, 0, 14)),
	}

	res := Estimate(history, time.Monday, "09:00")
	if res.Expected == nil {
		t.Fatal("expected populated")
	}
	// round(0.6*30 + 0.4*20) = 26
	if *res.Expected != 26 {
		t.Errorf("expected = %d, want 26", *res.Expected)
	}
	// Interpolated quartiles over [10 20 30].
	if *res.P25 != 15 {
		t.Errorf("p25 = %f, want 15", *res.P25)
	}
	if *res.P75 != 25 {
		t.Errorf("p75 = %f, want 25", *res.P75)
	}
}

func TestEstimateFiltersExactSlot(t *testing.T) {
	base := time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)
	history := []domain.SlotObservation{
		obs(time.Monday, "09:00", 10, base),
		obs(time.Monday, "09:30", 99, base),
		obs(time.Tuesday, "09:00", 99, base.AddDate(0, 0, 1)),
	}

	res := Estimate(history, time.Monday, "09:00")
	if res.Expected == nil {
		t.Fatal("expected populated")
	}
	if *res.Expected != 10 {
		t.Errorf("expected = %d, want 10: other slots and weekdays must be excluded", *res.Expected)
	}
}

func TestEstimateNoHistory(t *testing.T) {
	res := Estimate(nil, time.Monday, "09:00")
	if res.Expected != nil || res.P25 != nil || res.P75 != nil {
		t.Errorf("empty history should yield all-nil result, got %+v", res)
	}

	history := []domain.SlotObservation{
		obs(time.Friday, "14:00", 5, time.Date(2026, 8, 7, 14, 0, 0, 0, time.UTC)),
	}
	res = Estimate(history, time.Monday, "09:00")
	if res.Expected != nil {
		t.Errorf("non-matching history should yield all-nil result, got %+v", res)
	}
}

func TestEstimateSingleObservation(t *testing.T) {
	history := []domain.SlotObservation{
		obs(time.Monday, "09:00", 7, time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)),
	}
	res := Estimate(history, time.Monday, "09:00")
	if res.Expected == nil || *res.Expected != 7 {
		t.Fatalf("expected = %v, want 7", res.Expected)
	}
	if *res.P25 != 7 || *res.P75 != 7 {
		t.Errorf("quartiles = %f/%f, want 7/7", *res.P25, *res.P75)
	}
}
