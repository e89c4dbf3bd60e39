package timeparser_test

import (
	"testing"
	"time"

	"github.com/septivank/sensor-monitor-worker/tools/timeparser"
)

func TestFromMillis(t *testing.T) {
	result := timeparser.FromMillis(1700000000000)

	expected := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	if !result.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, result)
	}
	if timeparser.ToMillis(result) != 1700000000000 {
		t.Errorf("Expected round trip to 1700000000000, got %d", timeparser.ToMillis(result))
	}
}

func TestParseTimestamp_Millis(t *testing.T) {
	result, err := timeparser.ParseTimestamp("1700000000000")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}
	if result != 1700000000000 {
		t.Errorf("Expected 1700000000000, got %d", result)
	}
}

func TestParseTimestamp_RFC3339(t *testing.T) {
	result, err := timeparser.ParseTimestamp("2023-11-14T22:13:20Z")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}
	if result != 1700000000000 {
		t.Errorf("Expected 1700000000000, got %d", result)
	}
}

func TestParseTimestamp_Date(t *testing.T) {
	result, err := timeparser.ParseTimestamp("2023-11-14")
	if err != nil {
		t.Fatalf("Failed to parse timestamp: %v", err)
	}

	expected := time.Date(2023, 11, 14, 0, 0, 0, 0, time.UTC).UnixMilli()
	if result != expected {
		t.Errorf("Expected %d, got %d", expected, result)
	}
}

func TestParseTimestamp_Invalid(t *testing.T) {
	_, err := timeparser.ParseTimestamp("invalid-date-string")
	if err == nil {
		t.Error("Expected error for invalid timestamp")
	}
}

func TestIsWithinTolerance_WithinRange(t *testing.T) {
	readingTime := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2025, 12, 29, 10, 33, 0, 0, time.UTC) // 3 minutes later

	if !timeparser.IsWithinTolerance(readingTime, receivedTime, 5) {
		t.Error("Expected timestamp to be within tolerance")
	}
}

func TestIsWithinTolerance_OutsideRange(t *testing.T) {
	readingTime := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2025, 12, 29, 10, 36, 0, 0, time.UTC) // 6 minutes later

	if timeparser.IsWithinTolerance(readingTime, receivedTime, 5) {
		t.Error("Expected timestamp to be outside tolerance")
	}
}

func TestIsWithinTolerance_ExactBoundary(t *testing.T) {
	readingTime := time.Date(2025, 12, 29, 10, 30, 0, 0, time.UTC)
	receivedTime := time.Date(2025, 12, 29, 10, 35, 0, 0, time.UTC) // Exactly 5 minutes

	if !timeparser.IsWithinTolerance(readingTime, receivedTime, 5) {
		t.Error("Expected timestamp at exact boundary to be within tolerance")
	}
}
